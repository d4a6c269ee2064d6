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

// This file defines the command that loads the project aggregate at the head
// of every project-scoped workflow chain. Jobs operate on a fresh read, not
// on whatever the API handler had in memory when the job was enqueued.
package commands

import (
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/store"
)

// ProjectLoader reads the project identified by the piped project id.
type ProjectLoader struct {
	cor.BaseCommand
	store *store.Store
}

// NewProjectLoader is the constructor for the ProjectLoader command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - repository: The project repository.
//
// Outputs:
//   - *ProjectLoader: A pointer to the newly instantiated command.
func NewProjectLoader(name string, repository *store.Store) *ProjectLoader {
	return &ProjectLoader{
		BaseCommand: *cor.NewBaseCommand(name),
		store:       repository,
	}
}

// Execute loads the project and pipes it to the next command.
func (t *ProjectLoader) Execute(context cor.Context) {
	ctx := context.GetContext()
	projectID, _ := context.Get(t.GetInputParam()).(string)
	if projectID == "" {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("a project id is required"))
		return
	}

	context.ReportProgress(5, "loading project")
	project, err := t.store.GetProject(ctx, projectID)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
