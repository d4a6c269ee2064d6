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

// This file defines the command that writes the in-memory project aggregate
// back to the repository. Every workflow chain ends with this step, so a job
// that fails mid-chain never persists a half-mutated project.
package commands

import (
	"time"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/store"
)

// ProjectPersister saves the piped project under its write lock.
type ProjectPersister struct {
	cor.BaseCommand
	store *store.Store
}

// NewProjectPersister is the constructor for the ProjectPersister command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - repository: The project repository.
//
// Outputs:
//   - *ProjectPersister: A pointer to the newly instantiated command.
func NewProjectPersister(name string, repository *store.Store) *ProjectPersister {
	return &ProjectPersister{
		BaseCommand: *cor.NewBaseCommand(name),
		store:       repository,
	}
}

// Execute saves the project. The per-project lock serializes concurrent jobs
// touching the same aggregate.
func (t *ProjectPersister) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "persistence expects a project as input"))
		return
	}

	context.ReportProgress(95, "saving project")
	err := t.store.WithProjectLock(project.ID, func() error {
		project.UpdatedAt = time.Now().UTC()
		return t.store.SaveProject(ctx, project)
	})
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
