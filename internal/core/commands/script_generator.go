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

// This file defines the command that writes the full script from the
// prepared breakdown and outline, records the cost report, and attaches the
// script to the project.
package commands

import (
	"log/slog"
	"strings"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/script"
)

// ScriptGenerator renders the full script for the requested video.
type ScriptGenerator struct {
	cor.BaseCommand
	generator *script.Generator
}

// NewScriptGenerator is the constructor for the ScriptGenerator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - generator: The segment-parallel script pipeline.
//
// Outputs:
//   - *ScriptGenerator: A pointer to the newly instantiated command.
func NewScriptGenerator(name string, generator *script.Generator) *ScriptGenerator {
	return &ScriptGenerator{
		BaseCommand: *cor.NewBaseCommand(name),
		generator:   generator,
	}
}

// Execute writes the script segment by segment and stores the result. The
// cost report is published to the context for the job's result payload.
func (t *ScriptGenerator) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "script generation expects a project as input"))
		return
	}
	seriesName := stringFrom(context, KeySeries)
	themeName := stringFrom(context, KeyTheme)
	key := model.ContentKey(seriesName, themeName)

	breakdown := project.Breakdowns[key]
	outline := project.Outlines[key]
	if breakdown == nil || outline == nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("series %q theme %q needs a breakdown and outline before script generation", seriesName, themeName))
		return
	}

	context.ReportProgress(65, "writing script segments")
	fullScript, report, err := t.generator.Generate(ctx, script.ScriptParams{
		ProjectID:   project.ID,
		Title:       stringFrom(context, KeyTitle),
		Outline:     outline,
		Breakdown:   breakdown,
		HostName:    stringFrom(context, KeyHostName),
		ChannelName: project.SeedChannel.Title,
		SponsorName: stringFrom(context, KeySponsorName),
	})
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}
	fullScript.SeriesName = seriesName
	fullScript.ThemeName = themeName

	for _, seg := range fullScript.Segments {
		if strings.Contains(seg.Body, "Error generating content") {
			slog.Warn("script segment degraded to placeholder", "project_id", project.ID, "segment", seg.Header)
		}
	}

	if project.Scripts == nil {
		project.Scripts = make(map[string]*model.FullScript)
	}
	project.Scripts[key] = fullScript
	context.Add(KeyCostReport, report)

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
