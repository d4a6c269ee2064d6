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

// This file defines the command that searches for candidate competitor
// channels using the project's taxonomy and moves the project into the
// "discovered" state.
package commands

import (
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// ChannelDiscoverer runs topic searches per series and collects candidate
// channels onto the project.
type ChannelDiscoverer struct {
	cor.BaseCommand
	discoverer *discovery.Discoverer
}

// NewChannelDiscoverer is the constructor for the ChannelDiscoverer command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - discoverer: The competitor discoverer bound to the search client.
//
// Outputs:
//   - *ChannelDiscoverer: A pointer to the newly instantiated command.
func NewChannelDiscoverer(name string, discoverer *discovery.Discoverer) *ChannelDiscoverer {
	return &ChannelDiscoverer{
		BaseCommand: *cor.NewBaseCommand(name),
		discoverer:  discoverer,
	}
}

// Execute discovers candidate channels and marks the project discovered.
func (t *ChannelDiscoverer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "discovery expects a project as input"))
		return
	}
	if project.Taxonomy == nil || len(project.Taxonomy.Series) == 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("project %s has no taxonomy to discover from", project.ID))
		return
	}

	context.ReportProgress(20, "searching for similar channels")
	if err := t.discoverer.Discover(ctx, project); err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}
	project.Status = model.ProjectStatusDiscovered

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
