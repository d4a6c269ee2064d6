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

// This file implements the project lifecycle workflows: project creation,
// competitor discovery, competitor finalization, and competitor analysis.
package workflow

import (
	"github.com/creatorscope/channelintel/internal/core/commands"
	"github.com/creatorscope/channelintel/internal/core/cor"
)

// CreateProjectWorkflow resolves the seed channel, extracts the taxonomy,
// and persists the new project. Its chain input is the seed channel URL.
type CreateProjectWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewCreateProjectWorkflow builds the project creation chain.
//
// Inputs:
//   - deps: The user-scoped pipeline components.
//
// Outputs:
//   - *CreateProjectWorkflow: The assembled workflow.
func NewCreateProjectWorkflow(deps *Deps) *CreateProjectWorkflow {
	out := &CreateProjectWorkflow{BaseCommand: *cor.NewBaseCommand("create-project-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewSeedChannelResolver("resolve-seed-channel", deps.Search))
	chain.AddCommand(commands.NewTaxonomyExtractor("extract-taxonomy", deps.Extractor))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *CreateProjectWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// DiscoverChannelsWorkflow searches for candidate competitors across the
// project taxonomy. Its chain input is the project id.
type DiscoverChannelsWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewDiscoverChannelsWorkflow builds the discovery chain.
func NewDiscoverChannelsWorkflow(deps *Deps) *DiscoverChannelsWorkflow {
	out := &DiscoverChannelsWorkflow{BaseCommand: *cor.NewBaseCommand("discover-channels-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewChannelDiscoverer("discover-channels", deps.Discoverer))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *DiscoverChannelsWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// FinalizeCompetitorsWorkflow turns the user's selected candidates into
// competitors. Its chain input is the project id; the selected channel ids
// ride the context under commands.KeySelectedChannels.
type FinalizeCompetitorsWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewFinalizeCompetitorsWorkflow builds the finalization chain.
func NewFinalizeCompetitorsWorkflow(deps *Deps) *FinalizeCompetitorsWorkflow {
	out := &FinalizeCompetitorsWorkflow{BaseCommand: *cor.NewBaseCommand("finalize-competitors-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewCompetitorFinalizer("finalize-competitors", deps.Discoverer, deps.Matcher))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *FinalizeCompetitorsWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// AnalyzeCompetitorsWorkflow computes group metrics and theme scores for a
// finalized project. Its chain input is the project id.
type AnalyzeCompetitorsWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewAnalyzeCompetitorsWorkflow builds the analysis chain.
func NewAnalyzeCompetitorsWorkflow(deps *Deps) *AnalyzeCompetitorsWorkflow {
	out := &AnalyzeCompetitorsWorkflow{BaseCommand: *cor.NewBaseCommand("analyze-competitors-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewCompetitorAnalyzer("analyze-competitors", deps.Exporter))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *AnalyzeCompetitorsWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
