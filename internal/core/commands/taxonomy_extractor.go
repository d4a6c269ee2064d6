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

// This file defines the command that classifies the seed channel's uploads
// into the series/theme/topic taxonomy and attaches it to the project.
package commands

import (
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/taxonomy"
)

// TaxonomyExtractor runs the title classification over the project's seed
// videos and attaches the resulting tree.
type TaxonomyExtractor struct {
	cor.BaseCommand
	extractor *taxonomy.Extractor
}

// NewTaxonomyExtractor is the constructor for the TaxonomyExtractor command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - extractor: The taxonomy extractor bound to the classifier model.
//
// Outputs:
//   - *TaxonomyExtractor: A pointer to the newly instantiated command.
func NewTaxonomyExtractor(name string, extractor *taxonomy.Extractor) *TaxonomyExtractor {
	return &TaxonomyExtractor{
		BaseCommand: *cor.NewBaseCommand(name),
		extractor:   extractor,
	}
}

// Execute classifies the seed uploads and recalculates the tree's rollups.
func (t *TaxonomyExtractor) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "taxonomy extraction expects a project as input"))
		return
	}
	if len(project.SeedVideos) == 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("seed channel %s has no uploads to classify", project.SeedChannel.ChannelID))
		return
	}

	context.ReportProgress(45, "extracting content taxonomy")
	tree, err := t.extractor.Classify(ctx, project.SeedVideos, project.SeedChannel.Title)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}
	tree.Recalculate()
	project.Taxonomy = tree

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
