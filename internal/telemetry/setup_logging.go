// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry configures application observability: structured JSON
// logging correlated with OpenTelemetry spans, plus trace and metric export.
package telemetry

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// EnvLogLevel selects the minimum slog level ("debug", "info", "warn",
// "error"). Unset or unrecognized values mean info.
const EnvLogLevel = "CHANNELINTEL_LOG_LEVEL"

const logFileName = "channelintel.log"

// spanCorrelationHandler injects the active span's trace identifiers into
// every record so Cloud Logging can group log lines under their trace.
type spanCorrelationHandler struct {
	slog.Handler
}

func (h *spanCorrelationHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		// Field names per the Cloud Logging structured log format:
		// https://cloud.google.com/logging/docs/structured-logging#special-payload-fields
		record.AddAttrs(
			slog.Any("logging.googleapis.com/trace", s.TraceID()),
			slog.Any("logging.googleapis.com/spanId", s.SpanID()),
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return h.Handler.Handle(ctx, record)
}

// renameForCloudLogging maps slog's default keys onto the names the Cloud
// Logging agent parses for severity, timestamp, and message.
func renameForCloudLogging(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		// Cloud Logging spells the warning severity out in full.
		if level, ok := a.Value.Any().(slog.Level); ok && level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogging installs the process-wide loggers: slog emits JSON records to
// stdout and a local log file, with span correlation attributes attached when
// a span is active; the standard log package is redirected to the same
// writers so third-party output lands in one stream.
func SetupLogging() {
	writer := io.Writer(os.Stdout)
	if file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		writer = io.MultiWriter(os.Stdout, file)
	}

	log.SetOutput(writer)
	log.SetPrefix("[INFO] ")
	log.SetFlags(log.Ldate | log.Ltime)

	level := levelFromEnv()
	jsonHandler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameForCloudLogging,
	})
	slog.SetDefault(slog.New(&spanCorrelationHandler{Handler: jsonHandler}))
	slog.SetLogLoggerLevel(level)
}
