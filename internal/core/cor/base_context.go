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
// analysis and generation pipelines. This file defines `BaseContext`, the
// default Context implementation: a property bag shared by every command in a
// workflow execution, plus the error map and the progress sink.
package cor

import (
	"context"
	"sort"
)

// BaseContext is the default implementation of the Context interface.
type BaseContext struct {
	data     map[string]interface{}
	errors   map[string]error
	context  context.Context
	progress ProgressFunc
}

// NewBaseContext creates an empty context ready for a workflow execution.
func NewBaseContext() Context {
	return &BaseContext{
		data:   make(map[string]interface{}),
		errors: make(map[string]error),
	}
}

// SetContext sets the underlying Go context. The chain uses this to scope
// OpenTelemetry spans per command.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext retrieves the underlying Go context.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Add stores a key-value pair and returns the context for chaining.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// Get retrieves a value by key, or nil if the key does not exist.
func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

// Remove deletes a key-value pair.
func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// AddError records an error under the name of the command that produced it.
func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

// GetErrors returns the map of all errors collected during the workflow.
func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// HasErrors reports whether any command has recorded an error.
func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// FirstError returns the error recorded under the lexicographically smallest
// command name, so repeated runs surface the same error, or nil if none.
func (c *BaseContext) FirstError() error {
	if len(c.errors) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.errors))
	for k := range c.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return c.errors[keys[0]]
}

// SetProgressFunc installs the sink that receives progress updates from
// commands.
func (c *BaseContext) SetProgressFunc(fn ProgressFunc) {
	c.progress = fn
}

// ReportProgress forwards a progress update to the installed sink. Calls are
// silently dropped when no sink is installed, which keeps commands usable in
// tests without a job attached.
func (c *BaseContext) ReportProgress(percent int, step string) {
	if c.progress != nil {
		c.progress(percent, step)
	}
}
