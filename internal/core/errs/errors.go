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

// Package errs defines the closed set of error kinds surfaced by the core
// pipeline. Every failure that crosses a component boundary is wrapped in an
// *errs.Error carrying one of these kinds, so that callers (the job
// orchestrator, the HTTP surface, and the CLI) can branch on the kind without
// string matching.
//
// The kinds map one-to-one onto the retry and propagation policy:
//   - Transient failures are retried inside the client that produced them and
//     surface as KindUpstreamTransient only after retries are exhausted.
//   - Refusals from the language model are never retried.
//   - Quota exhaustion on read paths triggers the scrape fallback; on write
//     paths it surfaces directly.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind enumerates the error categories surfaced by the core.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindQuotaExceeded
	KindUpstreamTransient
	KindUpstreamRefusal
	KindParse
	KindCancelled
	KindMissingSecret
)

// String returns the stable wire name for the kind. These names appear in job
// error fields and in CLI output, so they must not change.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindUpstreamTransient:
		return "UpstreamTransient"
	case KindUpstreamRefusal:
		return "UpstreamRefusal"
	case KindParse:
		return "ParseError"
	case KindCancelled:
		return "Cancelled"
	case KindMissingSecret:
		return "MissingSecret"
	default:
		return "InternalError"
	}
}

// ExitCode maps an error kind to the exit code contract of the companion CLI:
// 0 success, 2 validation error, 3 missing secret, 4 transient upstream
// failure, 5 quota exceeded.
func (k Kind) ExitCode() int {
	switch k {
	case KindValidation:
		return 2
	case KindMissingSecret:
		return 3
	case KindQuotaExceeded:
		return 5
	case KindUpstreamTransient:
		return 4
	default:
		return 1
	}
}

// Error is the concrete error type carried across component boundaries.
// It wraps an optional cause and an optional raw payload (used by KindParse to
// preserve the unparseable model output for debugging).
type Error struct {
	Kind    Kind
	Message string
	Payload string // raw upstream payload, only set for parse failures
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a kind and message. A nil cause returns nil so
// call sites can wrap unconditionally.
func Wrap(cause error, kind Kind, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Validation is shorthand for the most common construction.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// KindOf extracts the kind from any error produced by the core. Errors that
// did not originate here report KindInternal. A context cancellation anywhere
// in the chain reports KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.cause
	}
	return false
}
