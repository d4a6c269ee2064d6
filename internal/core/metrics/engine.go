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

// Package metrics computes the derived numbers the UI and content picker
// read: group means over finalized competitors, per-theme outlier scores
// against the channel's own baseline, and the revenue estimate. Everything
// in this package is a pure function of stored state; no network calls.
package metrics

import (
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Outlier tier names, ordered from strongest to weakest.
const (
	TierExtreme  = "extreme"
	TierHigh     = "high"
	TierModerate = "moderate"
	TierStandard = "standard"
)

// Outlier tier thresholds on the score (theme average over channel
// baseline).
const (
	extremeThreshold  = 3.0
	highThreshold     = 2.0
	moderateThreshold = 1.5
)

// GroupMetrics returns the simple means over the project's finalized
// competitors. An empty competitor set yields zeroes.
func GroupMetrics(project *model.Project) model.GroupMetrics {
	var out model.GroupMetrics
	if len(project.Competitors) == 0 {
		return out
	}
	for _, c := range project.Competitors {
		out.AvgMonthlyViews += c.MonthlyViews
		out.AvgMonthlySubs += c.MonthlySubGrowth
		out.AvgUploadFrequency += c.UploadFrequency
	}
	n := float64(len(project.Competitors))
	out.AvgMonthlyViews /= n
	out.AvgMonthlySubs /= n
	out.AvgUploadFrequency /= n
	return out
}

// ThemeOutlier is one theme's performance relative to the channel baseline.
type ThemeOutlier struct {
	SeriesName string  `json:"series_name"`
	ThemeName  string  `json:"theme_name"`
	AvgViews   float64 `json:"avg_views"`
	VideoCount int     `json:"video_count"`
	Score      float64 `json:"score"`
	Tier       string  `json:"tier"`
}

// ChannelAvgViews is the project channel's baseline: total views over total
// videos across the whole taxonomy.
func ChannelAvgViews(tree *model.TaxonomyTree) float64 {
	if tree == nil {
		return 0
	}
	var views int64
	var count int
	for _, series := range tree.Series {
		views += series.TotalViews
		count += series.VideoCount
	}
	if count == 0 {
		return 0
	}
	return float64(views) / float64(count)
}

// ScoreThemes computes the outlier score and tier for every theme in the
// taxonomy. A zero baseline scores everything zero.
func ScoreThemes(tree *model.TaxonomyTree) []*ThemeOutlier {
	if tree == nil {
		return nil
	}
	baseline := ChannelAvgViews(tree)

	var out []*ThemeOutlier
	for _, series := range tree.Series {
		for _, theme := range series.Themes {
			score := 0.0
			if baseline > 0 {
				score = theme.AvgViews / baseline
			}
			out = append(out, &ThemeOutlier{
				SeriesName: series.Name,
				ThemeName:  theme.Name,
				AvgViews:   theme.AvgViews,
				VideoCount: theme.VideoCount,
				Score:      score,
				Tier:       TierFor(score),
			})
		}
	}
	return out
}

// TierFor maps an outlier score to its tier name.
func TierFor(score float64) string {
	switch {
	case score >= extremeThreshold:
		return TierExtreme
	case score >= highThreshold:
		return TierHigh
	case score >= moderateThreshold:
		return TierModerate
	default:
		return TierStandard
	}
}
