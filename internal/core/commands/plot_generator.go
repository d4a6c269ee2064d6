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

// This file defines the command that generates the timestamped plot outline
// for a requested video. The outline is regenerated on every run because the
// requested title and duration change per request; only the breakdown behind
// it is reused.
package commands

import (
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/script"
)

// PlotGenerator produces the validated plot outline for a (series, theme)
// pair and the requested title and duration.
type PlotGenerator struct {
	cor.BaseCommand
	outliner *script.Outliner
}

// NewPlotGenerator is the constructor for the PlotGenerator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - outliner: The outline pipeline bound to the text model.
//
// Outputs:
//   - *PlotGenerator: A pointer to the newly instantiated command.
func NewPlotGenerator(name string, outliner *script.Outliner) *PlotGenerator {
	return &PlotGenerator{
		BaseCommand: *cor.NewBaseCommand(name),
		outliner:    outliner,
	}
}

// Execute generates the outline and stores it under the content key.
func (t *PlotGenerator) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "plot generation expects a project as input"))
		return
	}
	seriesName := stringFrom(context, KeySeries)
	themeName := stringFrom(context, KeyTheme)
	title := stringFrom(context, KeyTitle)
	durationMin := intFrom(context, KeyDurationMin)
	if title == "" || durationMin <= 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("plot generation requires a title and a positive duration"))
		return
	}

	key := model.ContentKey(seriesName, themeName)
	breakdown := project.Breakdowns[key]
	if breakdown == nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("no script breakdown prepared for series %q theme %q", seriesName, themeName))
		return
	}

	context.ReportProgress(55, "generating plot outline")
	outline, err := t.outliner.Generate(ctx, script.OutlineParams{
		Title:            title,
		TotalDurationSec: durationMin * 60,
		Breakdown:        breakdown,
	})
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}
	outline.SeriesName = seriesName
	outline.ThemeName = themeName

	if project.Outlines == nil {
		project.Outlines = make(map[string]*model.PlotOutline)
	}
	project.Outlines[key] = outline

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
