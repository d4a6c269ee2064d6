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
// analysis and generation pipelines. A workflow is a Chain of Commands; each
// Command is an atomic, independently testable unit of work that reads its
// input from a shared Context and writes its output back for the next
// command. Because every background job is a chain execution, the Context
// also carries a progress reporter so commands can surface human-readable
// step labels to the job record without knowing anything about jobs.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used for the primary data flow in a chain.
// After each command runs, the chain moves the value under CtxOut to CtxIn so
// the output of one command becomes the input of the next.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// ProgressFunc receives progress updates from commands: an integer percentage
// in [0,100] and a human-readable step label.
type ProgressFunc func(percent int, step string)

// Context is the shared state object passed through a chain of commands. It
// acts as a property bag for a single workflow execution, carrying data,
// errors, the Go context for cancellation and tracing, and the progress sink.
type Context interface {
	// SetContext sets the standard Go context used for cancellation signals
	// and OpenTelemetry trace propagation.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go context.
	GetContext() context.Context

	// Add stores a key-value pair, returning the Context for chaining.
	Add(key string, value interface{}) Context

	// Get retrieves a value by key, or nil if absent.
	Get(key string) interface{}

	// Remove deletes a key-value pair.
	Remove(key string)

	// AddError records an error keyed by the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all errors collected during the workflow.
	GetErrors() map[string]error

	// HasErrors reports whether any command has failed.
	HasErrors() bool

	// FirstError returns one of the collected errors, or nil. Chains surface
	// this as the job error.
	FirstError() error

	// SetProgressFunc installs the sink that receives progress updates.
	SetProgressFunc(fn ProgressFunc)

	// ReportProgress forwards a progress update to the installed sink, if
	// any. Safe to call with no sink installed.
	ReportProgress(percent int, step string)
}

// Executable is any object with core execution logic over a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic, thread-safe unit of work and the fundamental building
// block of a workflow.
type Command interface {
	Executable

	// GetName returns the unique name used for logging and telemetry.
	GetName() string

	// GetInputParam returns the context key for the command's primary input.
	GetInputParam() string

	// GetOutputParam returns the context key for the command's primary output.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	// GetTracer returns the OpenTelemetry tracer for this command.
	GetTracer() trace.Tracer

	// GetMeter returns the OpenTelemetry meter for this command.
	GetMeter() metric.Meter

	// GetSuccessCounter returns the counter incremented on success.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter returns the counter incremented on failure.
	GetErrorCounter() metric.Int64Counter
}

// Chain is a sequence of commands. It is itself a Command, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure configures whether the chain keeps executing after a
	// command records an error. The default is to stop.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
