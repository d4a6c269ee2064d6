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

// This file defines the command that prepares the script breakdown for a
// (series, theme) pair.
//
// Logic Flow:
//  1. Source videos are gathered, preferring competitor uploads whose titles
//     matched the series, then falling back to the seed channel's own topics
//     in the theme.
//  2. Each source's transcript is fetched; videos without captions are
//     skipped with a warning.
//  3. The breakdown pipeline distills the transcripts into a single template
//     stored on the project under the content key.
//
// The command is idempotent: an existing breakdown for the pair is kept, so
// script jobs can run it unconditionally at the head of their chains.
package commands

import (
	gocontext "context"
	"log/slog"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/script"
	"github.com/creatorscope/channelintel/internal/core/search"
)

// maxBreakdownSources caps how many transcripts feed one breakdown.
const maxBreakdownSources = 3

// ResourcePreparer builds the script breakdown for a (series, theme) pair.
type ResourcePreparer struct {
	cor.BaseCommand
	search      search.Service
	breakdowner *script.Breakdowner
}

// NewResourcePreparer is the constructor for the ResourcePreparer command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - searchClient: Used for transcript and video detail fetches.
//   - breakdowner: The transcript analysis pipeline.
//
// Outputs:
//   - *ResourcePreparer: A pointer to the newly instantiated command.
func NewResourcePreparer(name string, searchClient search.Service, breakdowner *script.Breakdowner) *ResourcePreparer {
	return &ResourcePreparer{
		BaseCommand: *cor.NewBaseCommand(name),
		search:      searchClient,
		breakdowner: breakdowner,
	}
}

// Execute prepares the breakdown unless one already exists for the pair.
func (t *ResourcePreparer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "resource preparation expects a project as input"))
		return
	}
	seriesName := stringFrom(context, KeySeries)
	themeName := stringFrom(context, KeyTheme)

	series := project.Taxonomy.FindSeries(seriesName)
	if series == nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("series %q does not exist on project %s", seriesName, project.ID))
		return
	}
	theme := series.FindTheme(themeName)
	if theme == nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("theme %q does not exist in series %q", themeName, seriesName))
		return
	}

	key := model.ContentKey(seriesName, themeName)
	if project.Breakdowns != nil && project.Breakdowns[key] != nil {
		context.ReportProgress(30, "reusing existing breakdown")
		t.GetSuccessCounter().Add(ctx, 1)
		context.Add(t.GetOutputParam(), project)
		return
	}

	context.ReportProgress(15, "collecting source transcripts")
	sources := t.collectSources(context, project, seriesName, theme)
	if len(sources) == 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("no source videos with transcripts for series %q theme %q", seriesName, themeName))
		return
	}

	context.ReportProgress(30, "analyzing writing structure")
	breakdown, err := t.breakdowner.Breakdown(ctx, seriesName, themeName, sources)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}
	breakdown.ProjectID = project.ID

	if project.Breakdowns == nil {
		project.Breakdowns = make(map[string]*model.ScriptBreakdown)
	}
	project.Breakdowns[key] = breakdown

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}

// collectSources gathers up to maxBreakdownSources transcript-backed videos,
// competitor uploads first, seed topics as the fallback.
func (t *ResourcePreparer) collectSources(context cor.Context, project *model.Project, seriesName string, theme *model.Theme) []*script.BreakdownSource {
	ctx := context.GetContext()
	var sources []*script.BreakdownSource

	for _, competitor := range project.Competitors {
		for _, matching := range competitor.MatchingSeries {
			if matching.SeriesName != seriesName {
				continue
			}
			for _, title := range matching.MatchingTitles {
				if len(sources) >= maxBreakdownSources {
					return sources
				}
				video := videoByTitle(competitor.Videos, title)
				if video == nil {
					continue
				}
				if src := t.sourceFor(ctx, video); src != nil {
					sources = append(sources, src)
				}
			}
		}
	}

	for _, topic := range theme.Topics {
		if len(sources) >= maxBreakdownSources {
			break
		}
		if topic.VideoID == "" {
			continue
		}
		video, err := t.search.GetVideo(ctx, topic.VideoID)
		if err != nil {
			slog.Warn("failed to fetch source video", "video_id", topic.VideoID, "error", err)
			continue
		}
		if src := t.sourceFor(ctx, video); src != nil {
			sources = append(sources, src)
		}
	}
	return sources
}

// sourceFor fetches the transcript for a video; videos without captions are
// dropped.
func (t *ResourcePreparer) sourceFor(ctx gocontext.Context, video *model.Video) *script.BreakdownSource {
	transcript, err := t.search.GetTranscript(ctx, video.VideoID)
	if err != nil {
		slog.Warn("no transcript for source video", "video_id", video.VideoID, "error", err)
		return nil
	}
	return &script.BreakdownSource{
		Title:           video.Title,
		Description:     video.Description,
		DurationSeconds: video.DurationSeconds,
		Transcript:      transcript,
	}
}

// videoByTitle finds the first video with an exact title match.
func videoByTitle(videos []*model.Video, title string) *model.Video {
	for _, video := range videos {
		if video.Title == title {
			return video
		}
	}
	return nil
}
