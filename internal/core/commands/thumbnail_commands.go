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

// This file defines the three thumbnail pipeline commands: the reference
// analysis that produces the style guideline document, the fine-tune
// training step, and the concept rendering step. They run as one chain but
// are separate commands so a re-run skips the stages that already completed
// (training in particular is expensive and idempotent per project).
package commands

import (
	"encoding/json"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/thumbnail"
)

// ThumbnailAnalyzer derives the style guideline document from the project's
// uploaded reference thumbnails.
type ThumbnailAnalyzer struct {
	cor.BaseCommand
	analyzer *thumbnail.Analyzer
}

// NewThumbnailAnalyzer is the constructor for the ThumbnailAnalyzer command.
func NewThumbnailAnalyzer(name string, analyzer *thumbnail.Analyzer) *ThumbnailAnalyzer {
	return &ThumbnailAnalyzer{
		BaseCommand: *cor.NewBaseCommand(name),
		analyzer:    analyzer,
	}
}

// Execute analyzes the references and stores the guideline document.
func (t *ThumbnailAnalyzer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "thumbnail analysis expects a project as input"))
		return
	}

	context.ReportProgress(15, "analyzing reference thumbnails")
	_, doc, err := t.analyzer.AnalyzeReferences(ctx, project.ID)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	if project.Thumbnails == nil {
		project.Thumbnails = &model.ThumbnailAssets{}
	}
	project.Thumbnails.GuidelinesJSON = doc

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}

// ThumbnailTrainer fine-tunes the image model on the project's references.
type ThumbnailTrainer struct {
	cor.BaseCommand
	trainer *thumbnail.Trainer
}

// NewThumbnailTrainer is the constructor for the ThumbnailTrainer command.
func NewThumbnailTrainer(name string, trainer *thumbnail.Trainer) *ThumbnailTrainer {
	return &ThumbnailTrainer{
		BaseCommand: *cor.NewBaseCommand(name),
		trainer:     trainer,
	}
}

// Execute trains the model unless a trained version is already attached.
func (t *ThumbnailTrainer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "thumbnail training expects a project as input"))
		return
	}
	assets := project.Thumbnails
	if assets == nil || assets.GuidelinesJSON == "" {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("thumbnail training requires the guideline analysis to run first"))
		return
	}
	if assets.TrainedModelVersion != "" {
		context.ReportProgress(45, "reusing trained model")
		t.GetSuccessCounter().Add(ctx, 1)
		context.Add(t.GetOutputParam(), project)
		return
	}

	var guidelines thumbnail.Guidelines
	if err := json.Unmarshal([]byte(assets.GuidelinesJSON), &guidelines); err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Wrap(err, errs.KindParse, "stored guideline document is not valid JSON"))
		return
	}

	context.ReportProgress(35, "training thumbnail model")
	if err := t.trainer.Train(ctx, project.ID, assets, guidelines.TrainingGuidance); err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}

// ThumbnailRenderer renders thumbnail variants for the requested concepts.
type ThumbnailRenderer struct {
	cor.BaseCommand
	renderer *thumbnail.Renderer
}

// NewThumbnailRenderer is the constructor for the ThumbnailRenderer command.
func NewThumbnailRenderer(name string, renderer *thumbnail.Renderer) *ThumbnailRenderer {
	return &ThumbnailRenderer{
		BaseCommand: *cor.NewBaseCommand(name),
		renderer:    renderer,
	}
}

// Execute renders the concepts against the trained model.
func (t *ThumbnailRenderer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "thumbnail rendering expects a project as input"))
		return
	}
	concepts, _ := context.Get(KeyConcepts).([]string)
	if len(concepts) == 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("thumbnail rendering requires at least one concept"))
		return
	}

	context.ReportProgress(75, "rendering thumbnail concepts")
	err := t.renderer.Render(ctx, project.ID, project.Thumbnails, concepts, thumbnail.DefaultImagesPerConcept)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
