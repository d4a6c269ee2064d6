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

// This file bridges workflows to the job orchestrator: it seeds a chain
// context, wires the job's progress sink into it, executes the workflow, and
// maps the chain outcome back to the job result.
package workflow

import (
	"context"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Run executes a workflow over a fresh chain context.
//
// Inputs:
//   - ctx: cancelling it stops the chain between commands and aborts the
//     command in flight.
//   - wf: the workflow to execute.
//   - input: the chain's primary input (a seed URL or a project id).
//   - params: extra context values keyed by the commands package keys.
//   - progress: the job progress sink; nil is allowed for direct calls.
//
// Outputs:
//   - cor.Context: the finished chain context, for reading outputs.
//   - error: the first error any command recorded, or nil.
func Run(ctx context.Context, wf cor.Executable, input any, params map[string]any, progress cor.ProgressFunc) (cor.Context, error) {
	c := cor.NewBaseContext()
	c.SetContext(ctx)
	if progress != nil {
		c.SetProgressFunc(progress)
	}
	for key, value := range params {
		c.Add(key, value)
	}
	if input != nil {
		c.Add(cor.CtxIn, input)
	}

	wf.Execute(c)
	if err := c.FirstError(); err != nil {
		// A chain interrupted by cancellation reports the bare context
		// error; normalize it so the orchestrator records "cancelled".
		if ctx.Err() != nil {
			return c, errs.Wrap(ctx.Err(), errs.KindCancelled, "workflow aborted")
		}
		return c, err
	}
	return c, nil
}

// AsRunner adapts a workflow execution to a jobs.Runner. The job's result
// reference is the path of the project the chain ends with.
func AsRunner(wf cor.Executable, input any, params map[string]any) jobs.Runner {
	return func(ctx context.Context, exec *jobs.Execution) (string, error) {
		c, err := Run(ctx, wf, input, params, exec.Progress)
		if err != nil {
			return "", err
		}
		return ProjectResultRef(c), nil
	}
}

// ProjectResultRef derives the job result reference from the chain's final
// piped value.
func ProjectResultRef(c cor.Context) string {
	if project, ok := c.Get(cor.CtxIn).(*model.Project); ok && project != nil {
		return "projects/" + project.ID
	}
	return ""
}
