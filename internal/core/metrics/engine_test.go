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

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/core/model"
)

func treeWithThemes() *model.TaxonomyTree {
	tree := &model.TaxonomyTree{Series: []*model.Series{{
		Name: "S",
		Themes: []*model.Theme{
			{Name: "baseline", Topics: []*model.Topic{
				{ExampleTitle: "a", Views: 1000},
				{ExampleTitle: "b", Views: 1000},
			}},
			{Name: "breakout", Topics: []*model.Topic{
				{ExampleTitle: "c", Views: 7000},
			}},
		},
	}}}
	tree.Recalculate()
	return tree
}

func TestGroupMetricsMeans(t *testing.T) {
	project := &model.Project{Competitors: []*model.CompetitorChannel{
		{MonthlyViews: 100, MonthlySubGrowth: 10, UploadFrequency: 4},
		{MonthlyViews: 300, MonthlySubGrowth: 30, UploadFrequency: 8},
	}}
	got := GroupMetrics(project)
	assert.InDelta(t, 200, got.AvgMonthlyViews, 1e-9)
	assert.InDelta(t, 20, got.AvgMonthlySubs, 1e-9)
	assert.InDelta(t, 6, got.AvgUploadFrequency, 1e-9)
}

func TestGroupMetricsEmpty(t *testing.T) {
	got := GroupMetrics(&model.Project{})
	assert.Zero(t, got.AvgMonthlyViews)
}

func TestScoreThemes(t *testing.T) {
	outliers := ScoreThemes(treeWithThemes())
	require.Len(t, outliers, 2)

	// Channel baseline: 9000 views over 3 videos = 3000.
	byName := map[string]*ThemeOutlier{}
	for _, o := range outliers {
		byName[o.ThemeName] = o
	}
	assert.InDelta(t, 1000.0/3000, byName["baseline"].Score, 1e-9)
	assert.Equal(t, TierStandard, byName["baseline"].Tier)
	assert.InDelta(t, 7000.0/3000, byName["breakout"].Score, 1e-9)
	assert.Equal(t, TierHigh, byName["breakout"].Tier)
}

func TestScoreThemesZeroBaseline(t *testing.T) {
	tree := &model.TaxonomyTree{Series: []*model.Series{{
		Name:   "S",
		Themes: []*model.Theme{{Name: "t", Topics: []*model.Topic{{ExampleTitle: "a"}}}},
	}}}
	tree.Recalculate()
	outliers := ScoreThemes(tree)
	require.Len(t, outliers, 1)
	assert.Zero(t, outliers[0].Score)
}

func TestTierThresholds(t *testing.T) {
	assert.Equal(t, TierExtreme, TierFor(3.0))
	assert.Equal(t, TierHigh, TierFor(2.5))
	assert.Equal(t, TierModerate, TierFor(1.5))
	assert.Equal(t, TierStandard, TierFor(1.49))
}

func TestBaseRPMBuckets(t *testing.T) {
	assert.InDelta(t, 3.5, BaseRPM(10*60), 1e-9)
	assert.InDelta(t, 5.0, BaseRPM(30*60), 1e-9)
	assert.InDelta(t, 6.5, BaseRPM(60*60), 1e-9)
	assert.InDelta(t, 14.5, BaseRPM(120*60), 1e-9)
	assert.InDelta(t, 23.5, BaseRPM(200*60), 1e-9)
}

func TestNicheMultiplierDefault(t *testing.T) {
	assert.InDelta(t, 3.0, NicheMultiplier("Finance"), 1e-9)
	assert.InDelta(t, 0.8, NicheMultiplier("underwater basket weaving"), 1e-9)
}

func TestEstimateMonthlyRevenue(t *testing.T) {
	// 500k monthly views, hour-long videos, finance niche:
	// 500 * 6.5 * 3.0 = 9750.
	got := EstimateMonthlyRevenue(500_000, 3600, "finance")
	assert.InDelta(t, 9750, got, 1e-6)
}

// recordingInserter captures exported rows.
type recordingInserter struct {
	rows []*model.ThemePerformanceRow
}

func (r *recordingInserter) Put(_ context.Context, src any) error {
	r.rows = append(r.rows, src.([]*model.ThemePerformanceRow)...)
	return nil
}

func TestThemeExporter(t *testing.T) {
	recorder := &recordingInserter{}
	exporter := newThemeExporterForTest(recorder)

	project := &model.Project{ID: "proj-1", Taxonomy: treeWithThemes()}
	require.NoError(t, exporter.Export(context.Background(), project))
	require.Len(t, recorder.rows, 2)
	assert.Equal(t, "proj-1", recorder.rows[0].ProjectID)
	assert.False(t, recorder.rows[0].ExportedAt.IsZero())
}

func TestThemeExporterDisabled(t *testing.T) {
	exporter := NewThemeExporter(nil, "", "")
	require.NoError(t, exporter.Export(context.Background(), &model.Project{Taxonomy: treeWithThemes()}))
}
