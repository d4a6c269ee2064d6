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

// This file defines the command that computes the competitor group's
// aggregate metrics and the theme outlier scores, and ships the score rows
// to the warehouse.
package commands

import (
	"log/slog"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/metrics"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// KeyThemeOutliers is the context key under which the analyzer publishes the
// scored theme list.
const KeyThemeOutliers = "theme_outliers"

// CompetitorAnalyzer computes group metrics and theme outlier scores for a
// finalized project.
type CompetitorAnalyzer struct {
	cor.BaseCommand
	exporter *metrics.ThemeExporter
}

// NewCompetitorAnalyzer is the constructor for the CompetitorAnalyzer
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - exporter: The warehouse exporter for theme scores; nil disables export.
//
// Outputs:
//   - *CompetitorAnalyzer: A pointer to the newly instantiated command.
func NewCompetitorAnalyzer(name string, exporter *metrics.ThemeExporter) *CompetitorAnalyzer {
	return &CompetitorAnalyzer{
		BaseCommand: *cor.NewBaseCommand(name),
		exporter:    exporter,
	}
}

// Execute computes and publishes the analysis. Group metrics are derived
// state and are never persisted on the project; readers recompute them.
func (t *CompetitorAnalyzer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "analysis expects a project as input"))
		return
	}
	if project.Status != model.ProjectStatusFinalized {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("project %s must be finalized before analysis, status is %s", project.ID, project.Status))
		return
	}

	context.ReportProgress(40, "computing group metrics")
	context.Add(KeyGroupMetrics, metrics.GroupMetrics(project))

	context.ReportProgress(60, "scoring themes")
	outliers := metrics.ScoreThemes(project.Taxonomy)
	context.Add(KeyThemeOutliers, outliers)

	// Warehouse export is best effort; a BigQuery outage must not fail the
	// analysis the user is waiting on.
	if t.exporter != nil {
		context.ReportProgress(80, "exporting theme scores")
		if err := t.exporter.Export(ctx, project); err != nil {
			slog.Warn("theme score export failed", "project_id", project.ID, "error", err)
		}
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
