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

// This file implements the content generation workflows: resource
// preparation, plot outlining, full script generation, and the thumbnail
// pipeline. The script workflows layer on each other: plot generation runs
// resource preparation first (a no-op when the breakdown exists), and script
// generation runs both.
package workflow

import (
	"github.com/creatorscope/channelintel/internal/core/commands"
	"github.com/creatorscope/channelintel/internal/core/cor"
)

// PrepareResourcesWorkflow builds the script breakdown for a (series, theme)
// pair. Its chain input is the project id; series and theme ride the context.
type PrepareResourcesWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewPrepareResourcesWorkflow builds the preparation chain.
func NewPrepareResourcesWorkflow(deps *Deps) *PrepareResourcesWorkflow {
	out := &PrepareResourcesWorkflow{BaseCommand: *cor.NewBaseCommand("prepare-resources-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewResourcePreparer("prepare-resources", deps.Search, deps.Breakdowner))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *PrepareResourcesWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// GeneratePlotWorkflow prepares resources when needed and generates the plot
// outline for the requested title and duration.
type GeneratePlotWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewGeneratePlotWorkflow builds the outlining chain.
func NewGeneratePlotWorkflow(deps *Deps) *GeneratePlotWorkflow {
	out := &GeneratePlotWorkflow{BaseCommand: *cor.NewBaseCommand("generate-plot-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewResourcePreparer("prepare-resources", deps.Search, deps.Breakdowner))
	chain.AddCommand(commands.NewPlotGenerator("generate-plot", deps.Outliner))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *GeneratePlotWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// GenerateScriptWorkflow runs the full three-stage script pipeline and
// persists the rendered script.
type GenerateScriptWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewGenerateScriptWorkflow builds the script chain.
func NewGenerateScriptWorkflow(deps *Deps) *GenerateScriptWorkflow {
	out := &GenerateScriptWorkflow{BaseCommand: *cor.NewBaseCommand("generate-script-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewResourcePreparer("prepare-resources", deps.Search, deps.Breakdowner))
	chain.AddCommand(commands.NewPlotGenerator("generate-plot", deps.Outliner))
	chain.AddCommand(commands.NewScriptGenerator("generate-script", deps.ScriptGen))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *GenerateScriptWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// GenerateThumbnailsWorkflow analyzes the reference thumbnails, trains the
// image model when no trained version exists yet, and renders the requested
// concepts.
type GenerateThumbnailsWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewGenerateThumbnailsWorkflow builds the thumbnail chain.
func NewGenerateThumbnailsWorkflow(deps *Deps) *GenerateThumbnailsWorkflow {
	out := &GenerateThumbnailsWorkflow{BaseCommand: *cor.NewBaseCommand("generate-thumbnails-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewProjectLoader("load-project", deps.Store))
	chain.AddCommand(commands.NewThumbnailAnalyzer("analyze-thumbnails", deps.ThumbnailAnalyzer))
	chain.AddCommand(commands.NewThumbnailTrainer("train-thumbnail-model", deps.ThumbnailTrainer))
	chain.AddCommand(commands.NewThumbnailRenderer("render-thumbnails", deps.ThumbnailRenderer))
	chain.AddCommand(commands.NewProjectPersister("persist-project", deps.Store))
	out.chain = chain
	return out
}

// Execute runs the chain.
func (w *GenerateThumbnailsWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
