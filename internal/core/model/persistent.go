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
// This file, `persistent.go`, contains the structs that are serialized into
// the document store: the Project aggregate (which exclusively owns its
// taxonomy, competitor set, script artifacts, and thumbnail assets), the Job
// record, and per-user secrets. Everything here is plain data; behavior that
// derives values (sorting, aggregation, key derivation) lives next to it so
// that invariants have exactly one implementation.
package model

import (
	"sort"
	"strings"
	"time"
)

// ProjectStatus tracks the lifecycle of a competitor group.
type ProjectStatus string

const (
	ProjectStatusInitial    ProjectStatus = "initial"
	ProjectStatusDiscovered ProjectStatus = "discovered"
	ProjectStatusFinalized  ProjectStatus = "finalized"
)

// ChannelStats holds the public statistics of a YouTube channel at the time
// it was fetched.
type ChannelStats struct {
	ChannelID       string    `json:"channel_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	SubscriberCount int64     `json:"subscriber_count"`
	ViewCount       int64     `json:"view_count"`
	VideoCount      int64     `json:"video_count"`
	PublishedAt     time.Time `json:"published_at,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
}

// Video is the summary of a single uploaded video used throughout the
// pipeline: taxonomy extraction reads the titles, the metrics engine reads
// the counters, the script pipeline reads durations.
type Video struct {
	VideoID         string    `json:"video_id"`
	ChannelID       string    `json:"channel_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Views           int64     `json:"views"`
	Likes           int64     `json:"likes"`
	Comments        int64     `json:"comments"`
	DurationSeconds int       `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
}

// Topic is one video standing in a theme. Its canonical identifier is the
// exact example title; duplicates in the input are preserved as separate
// topic rows. The `name`/`example` JSON tags are the interoperability
// contract for the taxonomy document and must not change.
type Topic struct {
	Name         string    `json:"name"`
	ExampleTitle string    `json:"example"`
	Views        int64     `json:"views,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PublishedAt  time.Time `json:"published_at,omitempty"`
	VideoID      string    `json:"video_id,omitempty"`
	ChannelID    string    `json:"channel_id,omitempty"`
}

// Theme groups topically similar videos inside a series.
type Theme struct {
	Name       string   `json:"name"`
	Topics     []*Topic `json:"topics"`
	TotalViews int64    `json:"total_views,omitempty"`
	VideoCount int      `json:"video_count,omitempty"`
	AvgViews   float64  `json:"avg_views,omitempty"`
}

// Series is a cluster of videos sharing a recurring title structure.
// ChannelsWithSeries is the set of channel ids known to produce this series,
// stored as a sorted slice for stable serialization.
type Series struct {
	Name               string   `json:"name"`
	Themes             []*Theme `json:"themes"`
	TotalViews         int64    `json:"total_views,omitempty"`
	VideoCount         int      `json:"video_count,omitempty"`
	AvgViews           float64  `json:"avg_views,omitempty"`
	ChannelsWithSeries []string `json:"channels_with_series,omitempty"`
}

// TaxonomyTree is the ordered series hierarchy extracted from a channel's
// video titles. Series are kept sorted by avg_views descending, as are the
// themes inside each series.
type TaxonomyTree struct {
	Series []*Series `json:"series"`
}

// CandidateChannel is a potential competitor surfaced by topic search but not
// yet confirmed by the user.
type CandidateChannel struct {
	Stats      ChannelStats `json:"stats"`
	FoundVia   string       `json:"found_via,omitempty"` // the example title whose search surfaced this channel
	SeriesName string       `json:"series_name,omitempty"`
}

// MatchingSeries records which of a competitor's recent titles matched the
// example titles of one of the project's series. A channel "shares" a series
// only when it has at least three matching titles.
type MatchingSeries struct {
	SeriesName     string   `json:"series_name"`
	MatchingTitles []string `json:"matching_titles"`
}

// SharedSeriesMinMatches is the eligibility threshold for MatchingSeries.
const SharedSeriesMinMatches = 3

// CompetitorChannel is a finalized competitor with its recent uploads and the
// derived performance metrics computed at add time.
type CompetitorChannel struct {
	ChannelID        string            `json:"channel_id"`
	Title            string            `json:"title"`
	Stats            ChannelStats      `json:"stats"`
	Videos           []*Video          `json:"videos,omitempty"`
	MatchingSeries   []*MatchingSeries `json:"matching_series,omitempty"`
	UploadFrequency  float64           `json:"upload_frequency"`   // videos per month
	MonthlyViews     float64           `json:"monthly_views"`      // lifetime views / months active
	MonthlySubGrowth float64           `json:"monthly_sub_growth"` // subscribers / months since channel creation
	GrowthScore      float64           `json:"growth_score"`
	AvgVideoDuration float64           `json:"avg_video_duration"` // seconds
	EngagementRate   float64           `json:"engagement_rate"`    // (likes+comments)/views
}

// ScriptBreakdown is a transcript-derived template capturing both the
// structure and the writing voice of an existing video series. At most one
// exists per (series, theme) pair on a project.
type ScriptBreakdown struct {
	ProjectID      string    `json:"project_id"`
	SeriesName     string    `json:"series_name"`
	ThemeName      string    `json:"theme_name"`
	IsClipReactive bool      `json:"is_clip_reactive"`
	Breakdown      string    `json:"script_breakdown"` // the full analysis text
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Segment is one duration-budgeted entry in a plot outline. Start, End and
// DurationSec are whole seconds; End of segment i equals Start of segment
// i+1, no segment exceeds MaxSegmentSeconds, and the introduction (segment 0)
// stays within MaxIntroSeconds.
type Segment struct {
	Name        string   `json:"name"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	DurationSec int      `json:"duration_sec"`
	KeyPoints   []string `json:"key_points,omitempty"`
}

// Segment duration limits enforced by the outline validator.
const (
	MaxSegmentSeconds = 600
	MaxIntroSeconds   = 20
)

// PlotOutline is a timestamped list of renamed segments for a single video.
type PlotOutline struct {
	Title            string     `json:"title"`
	SeriesName       string     `json:"series_name,omitempty"`
	ThemeName        string     `json:"theme_name,omitempty"`
	TotalDurationSec int        `json:"total_duration_sec"`
	Segments         []*Segment `json:"segments"`
	CreatedAt        time.Time  `json:"created_at,omitempty"`
}

// SegmentBreak is the literal separator between rendered script segments.
const SegmentBreak = "=== SEGMENT BREAK ==="

// ScriptSegment is one rendered segment of a full script: its header line in
// the form `Name (HH:MM:SS - HH:MM:SS, Duration: D)` followed by
// `[SPEAKER]: utterance` lines.
type ScriptSegment struct {
	Index  int    `json:"index"`
	Header string `json:"header"`
	Body   string `json:"body"`
}

// FullScript is the ordered sequence of rendered segments for one video.
type FullScript struct {
	ProjectID  string           `json:"project_id"`
	Title      string           `json:"title"`
	SeriesName string           `json:"series_name,omitempty"`
	ThemeName  string           `json:"theme_name,omitempty"`
	Segments   []*ScriptSegment `json:"segments"`
	CreatedAt  time.Time        `json:"created_at,omitempty"`
}

// Render concatenates the segments, in index order, into the final script
// text using the literal segment break separator.
func (s *FullScript) Render() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		text := seg.Header
		if len(seg.Body) > 0 {
			text = text + "\n" + seg.Body
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"+SegmentBreak+"\n")
}

// ThumbnailAssets holds everything the thumbnail pipeline produces for a
// project: the guideline JSON from the reference analysis, the trained image
// model reference, and the rendered outputs.
type ThumbnailAssets struct {
	GuidelinesJSON      string   `json:"guidelines_json,omitempty"`
	TrainedModelVersion string   `json:"trained_model_version,omitempty"`
	TriggerWord         string   `json:"trigger_word,omitempty"`
	Concepts            []string `json:"concepts,omitempty"`
	RenderedURLs        []string `json:"rendered_urls,omitempty"`
}

// Project is the root aggregate: a "competitor group" built around one seed
// channel. The project exclusively owns its taxonomy, competitor set, script
// artifacts and thumbnail assets; deleting a project deletes all of them.
//
// Invariant: the seed channel id never appears in Competitors or in any
// PotentialCompetitors list.
type Project struct {
	ID                   string                         `json:"id"`
	Name                 string                         `json:"name"`
	OwnerID              string                         `json:"owner_id"`
	AllowedUsers         []string                       `json:"allowed_users,omitempty"`
	SeedChannel          ChannelStats                   `json:"seed_channel"`
	SeedVideos           []*Video                       `json:"seed_videos,omitempty"`
	Taxonomy             *TaxonomyTree                  `json:"taxonomy,omitempty"`
	SearchResults        map[string][]*SearchResult     `json:"search_results,omitempty"`
	PotentialCompetitors map[string][]*CandidateChannel `json:"potential_competitors,omitempty"`
	Competitors          []*CompetitorChannel           `json:"competitors,omitempty"`
	Breakdowns           map[string]*ScriptBreakdown    `json:"breakdowns,omitempty"`
	Outlines             map[string]*PlotOutline        `json:"outlines,omitempty"`
	Scripts              map[string]*FullScript         `json:"scripts,omitempty"`
	Thumbnails           *ThumbnailAssets               `json:"thumbnails,omitempty"`
	Status               ProjectStatus                  `json:"status"`
	CreatedAt            time.Time                      `json:"created_at"`
	UpdatedAt            time.Time                      `json:"updated_at"`
}

// ContentKey derives the single canonical key under which per-(series, theme)
// artifacts are stored on the project. Dots and spaces are folded so that the
// storage key never leaks formatting differences back through the API.
func ContentKey(series, theme string) string {
	fold := strings.NewReplacer(".", "_", " ", "_")
	return strings.ToLower(fold.Replace(series)) + "::" + strings.ToLower(fold.Replace(theme))
}

// HasCompetitor reports whether the channel id is already present in the
// finalized competitor set. Used to keep add_competitor idempotent.
func (p *Project) HasCompetitor(channelID string) bool {
	for _, c := range p.Competitors {
		if c.ChannelID == channelID {
			return true
		}
	}
	return false
}

// Recalculate recomputes all aggregate counters on the tree bottom-up and
// restores the ordering invariants: themes sorted by avg_views descending
// inside each series, then series sorted the same way.
func (t *TaxonomyTree) Recalculate() {
	for _, s := range t.Series {
		s.TotalViews = 0
		s.VideoCount = 0
		for _, th := range s.Themes {
			th.TotalViews = 0
			th.VideoCount = len(th.Topics)
			for _, topic := range th.Topics {
				th.TotalViews += topic.Views
			}
			if th.VideoCount > 0 {
				th.AvgViews = float64(th.TotalViews) / float64(th.VideoCount)
			} else {
				th.AvgViews = 0
			}
			s.TotalViews += th.TotalViews
			s.VideoCount += th.VideoCount
		}
		if s.VideoCount > 0 {
			s.AvgViews = float64(s.TotalViews) / float64(s.VideoCount)
		} else {
			s.AvgViews = 0
		}
		sort.SliceStable(s.Themes, func(i, j int) bool {
			return s.Themes[i].AvgViews > s.Themes[j].AvgViews
		})
	}
	sort.SliceStable(t.Series, func(i, j int) bool {
		return t.Series[i].AvgViews > t.Series[j].AvgViews
	})
}

// ExampleTitles returns every topic example title in the tree, preserving
// multiplicity. The taxonomy coverage invariant is checked against this list.
func (t *TaxonomyTree) ExampleTitles() []string {
	var out []string
	for _, s := range t.Series {
		for _, th := range s.Themes {
			for _, topic := range th.Topics {
				out = append(out, topic.ExampleTitle)
			}
		}
	}
	return out
}

// FindSeries returns the series with the given name, or nil.
func (t *TaxonomyTree) FindSeries(name string) *Series {
	for _, s := range t.Series {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FindTheme returns the theme with the given name, or nil.
func (s *Series) FindTheme(name string) *Theme {
	for _, th := range s.Themes {
		if th.Name == name {
			return th
		}
	}
	return nil
}

// JobState is the lifecycle state of a background job. Jobs are created
// running and become terminal exactly once.
type JobState string

const (
	JobStateRunning  JobState = "running"
	JobStateComplete JobState = "complete"
	JobStateError    JobState = "error"
)

// JobKind identifies the workflow a job executes.
type JobKind string

const (
	JobKindCreateProject       JobKind = "create_project"
	JobKindFinalizeCompetitors JobKind = "finalize_competitors"
	JobKindAnalyzeCompetitors  JobKind = "analyze_competitors"
	JobKindPrepareResources    JobKind = "prepare_resources"
	JobKindDiscoverChannels    JobKind = "discover_channels"
	JobKindGeneratePlot        JobKind = "generate_plot"
	JobKindGenerateScript      JobKind = "generate_script"
	JobKindGenerateThumbnails  JobKind = "generate_thumbnails"
)

// Job is the progress-tracked record of one background workflow execution.
// It references a project but does not own it.
type Job struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	State     JobState  `json:"state"`
	Progress  int       `json:"progress"` // 0..100
	Step      string    `json:"step"`
	ResultRef string    `json:"result_ref,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorLog  []string  `json:"error_log,omitempty"` // non-fatal errors, e.g. placeholder script segments
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSecret is one per-user API credential, keyed by (user, service).
// Secrets are snapshotted into a job's user context at start; rotating a key
// does not affect a running job.
type UserSecret struct {
	UserID  string `json:"user_id"`
	Service string `json:"service"`
	Key     string `json:"key"`
}

// Service names under which user secrets are stored.
const (
	ServiceLLM        = "llm"
	ServiceImageModel = "image_model"
	ServiceVoice      = "voice"
	ServiceSearch     = "search"
)
