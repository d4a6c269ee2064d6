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

// Package cor (Chain of Responsibility) provides the building blocks for the
// analysis and generation pipelines. This file defines `BaseCommand`, the
// default implementation of the `Command` interface.
//
// Every pipeline command embeds `BaseCommand` to inherit a name for logs and
// telemetry, per-command OpenTelemetry tracer/meter and success/error
// counters, and the default input/output parameter keys that drive the
// piping mechanism in `BaseChain`.
package cor

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// meterScope is the instrumentation scope for all per-command counters.
const meterScope = "github.com/creatorscope/channelintel"

// BaseCommand carries the identity and instrumentation shared by every
// pipeline command. Concrete commands embed it by value and override the
// parameter keys only when they read or write something other than the
// chain's piped value.
type BaseCommand struct {
	Name            string
	InputParamName  string // context key for the primary input; empty means CtxIn
	OutputParamName string // context key for the primary output; empty means CtxOut
	Tracer          trace.Tracer
	Meter           metric.Meter
	SuccessCounter  metric.Int64Counter
	ErrorCounter    metric.Int64Counter
}

// NewBaseCommand creates a named command with its tracer and outcome
// counters registered against the global OpenTelemetry providers.
//
// Inputs:
//   - name: the command name used in spans, metrics, and error maps.
//
// Outputs:
//   - *BaseCommand: the initialized command, ready to embed.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(meterScope)
	success, err := meter.Int64Counter(name + ".counter.success")
	if err != nil {
		slog.Warn("command success counter registration failed", "command", name, "error", err)
	}
	failure, err := meter.Int64Counter(name + ".counter.error")
	if err != nil {
		slog.Warn("command error counter registration failed", "command", name, "error", err)
	}
	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: success,
		ErrorCounter:   failure,
	}
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable reports whether the command has what it needs to run: a live
// context carrying a Go context and a non-nil value under the command's
// input key. Chains consult this before each step so a failed predecessor
// (which leaves the piped input unset) skips the rest of the chain.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.Get(c.GetInputParam()) != nil && context.GetContext() != nil
}

// GetInputParam returns the context key this command reads its input from,
// defaulting to the chain pipe key CtxIn.
func (c *BaseCommand) GetInputParam() string {
	if c.InputParamName == "" {
		return CtxIn
	}
	return c.InputParamName
}

// GetOutputParam returns the context key this command writes its output to,
// defaulting to the chain pipe key CtxOut.
func (c *BaseCommand) GetOutputParam() string {
	if c.OutputParamName == "" {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}
