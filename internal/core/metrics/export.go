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

// Package metrics computes derived numbers from stored state. This file
// exports per-theme performance rows to the analytics warehouse after
// competitor analysis, so the historical outlier data outlives any single
// project document.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// rowInserter is the slice of the BigQuery inserter the exporter needs.
// Tests substitute a recorder.
type rowInserter interface {
	Put(ctx context.Context, src any) error
}

// ThemeExporter streams theme performance rows to the warehouse.
type ThemeExporter struct {
	inserter rowInserter
}

// NewThemeExporter builds an exporter for the configured dataset and table.
// A nil client disables exporting, which is the default in tests and local
// runs.
func NewThemeExporter(client *bigquery.Client, dataset, table string) *ThemeExporter {
	if client == nil || dataset == "" || table == "" {
		return &ThemeExporter{}
	}
	return &ThemeExporter{inserter: client.Dataset(dataset).Table(table).Inserter()}
}

// newThemeExporterForTest wires a fake inserter.
func newThemeExporterForTest(inserter rowInserter) *ThemeExporter {
	return &ThemeExporter{inserter: inserter}
}

// Export writes one row per theme in the project's taxonomy. A disabled
// exporter is a no-op.
func (e *ThemeExporter) Export(ctx context.Context, project *model.Project) error {
	if e == nil || e.inserter == nil {
		return nil
	}
	outliers := ScoreThemes(project.Taxonomy)
	if len(outliers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*model.ThemePerformanceRow, 0, len(outliers))
	for _, outlier := range outliers {
		rows = append(rows, &model.ThemePerformanceRow{
			ProjectID:    project.ID,
			SeriesName:   outlier.SeriesName,
			ThemeName:    outlier.ThemeName,
			AvgViews:     outlier.AvgViews,
			VideoCount:   outlier.VideoCount,
			OutlierScore: outlier.Score,
			OutlierTier:  outlier.Tier,
			ExportedAt:   now,
		})
	}

	if err := e.inserter.Put(ctx, rows); err != nil {
		return errs.Wrap(err, errs.KindUpstreamTransient, "failed to export theme performance rows")
	}
	slog.Info("exported theme performance rows", "project_id", project.ID, "rows", len(rows))
	return nil
}
