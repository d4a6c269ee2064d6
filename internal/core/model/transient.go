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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains structs used in memory while a workflow
// runs: the wire shapes the language model is asked to produce, search result
// rows, transcripts, and the cost report assembled by the script generator.
// None of these are persisted in this form; the durable representations live
// in `persistent.go`.
package model

import (
	"strings"
	"time"
)

// TaxonomyWire is the bit-exact JSON shape exchanged with the language model
// during title classification:
//
//	{ "series": [ { "name": S, "themes": [ { "name": T,
//	    "topics": [ { "name": N, "example": E } ] } ] } ] }
type TaxonomyWire struct {
	Series []*SeriesWire `json:"series"`
}

// SeriesWire is one series entry in the classification wire format.
type SeriesWire struct {
	Name   string       `json:"name"`
	Themes []*ThemeWire `json:"themes"`
}

// ThemeWire is one theme entry in the classification wire format.
type ThemeWire struct {
	Name   string       `json:"name"`
	Topics []*TopicWire `json:"topics"`
}

// TopicWire is one topic entry in the classification wire format. Example is
// the exact input title the topic was derived from.
type TopicWire struct {
	Name    string `json:"name"`
	Example string `json:"example"`
}

// SharedSeriesWire is the shape the model returns when asked which of a
// candidate channel's titles match a series' example titles.
type SharedSeriesWire struct {
	MatchingTitles []string `json:"matching_titles"`
}

// SearchResult is the reduced row returned by video search. The HTML-scrape
// fallback produces the same shape, which is why it carries no statistics
// beyond a view count.
type SearchResult struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Views        int64  `json:"views,omitempty"`
}

// TranscriptSegment is one caption cue from a video transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"` // seconds from video start
	Dur   float64 `json:"dur"`
	Text  string  `json:"text"`
}

// Transcript is the caption track of a single video. A nil Transcript means
// the video has no retrievable captions.
type Transcript struct {
	VideoID  string               `json:"video_id"`
	Language string               `json:"language,omitempty"`
	Segments []*TranscriptSegment `json:"segments"`
}

// Text joins the caption cues into a single plain-text transcript.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// TokenUsage is the token accounting for a single model call.
type TokenUsage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	CacheReadTokens int64 `json:"cache_read_tokens"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// SegmentCost is the per-segment entry of a CostReport.
type SegmentCost struct {
	Index int        `json:"index"`
	Name  string     `json:"name"`
	Usage TokenUsage `json:"usage"`
	Cost  float64    `json:"cost"` // USD
}

// CostReport aggregates token usage and dollar cost across every model call
// made while generating a script. TotalCost always equals the sum of the
// per-segment costs.
type CostReport struct {
	Usage     TokenUsage     `json:"usage"`
	TotalCost float64        `json:"total_cost"`
	Segments  []*SegmentCost `json:"segments"`
}

// AddSegment folds a per-segment cost into the report totals.
func (r *CostReport) AddSegment(sc *SegmentCost) {
	r.Segments = append(r.Segments, sc)
	r.Usage.Add(sc.Usage)
	r.TotalCost += sc.Cost
}

// ThemePerformanceRow is one analytics row exported to the warehouse after
// competitor analysis: a theme's aggregate performance relative to the
// project's channel baseline.
type ThemePerformanceRow struct {
	ProjectID    string    `bigquery:"project_id" json:"project_id"`
	SeriesName   string    `bigquery:"series_name" json:"series_name"`
	ThemeName    string    `bigquery:"theme_name" json:"theme_name"`
	AvgViews     float64   `bigquery:"avg_views" json:"avg_views"`
	VideoCount   int       `bigquery:"video_count" json:"video_count"`
	OutlierScore float64   `bigquery:"outlier_score" json:"outlier_score"`
	OutlierTier  string    `bigquery:"outlier_tier" json:"outlier_tier"`
	ExportedAt   time.Time `bigquery:"exported_at" json:"exported_at"`
}

// GroupMetrics are the simple means across a project's finalized competitors.
type GroupMetrics struct {
	AvgMonthlyViews    float64 `json:"avg_monthly_views"`
	AvgMonthlySubs     float64 `json:"avg_monthly_subs"`
	AvgUploadFrequency float64 `json:"avg_upload_frequency"`
}
