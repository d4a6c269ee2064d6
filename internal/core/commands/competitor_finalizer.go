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

// This file defines the command that converts the user's selected candidate
// channels into finalized competitors.
//
// Logic Flow:
//  1. For each selected channel id, the competitor is fetched and added to
//     the project with its derived metrics (idempotently; re-selecting an
//     existing competitor is a no-op).
//  2. The competitor's recent upload titles are matched against every series
//     in the project taxonomy to record which series the channel shares.
//  3. Shared series get the channel id added to their ChannelsWithSeries
//     set, and the project moves to the "finalized" state.
package commands

import (
	"sort"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// CompetitorFinalizer adds selected channels as competitors and records the
// series they share with the seed channel.
type CompetitorFinalizer struct {
	cor.BaseCommand
	discoverer *discovery.Discoverer
	matcher    *discovery.SharedSeriesMatcher
}

// NewCompetitorFinalizer is the constructor for the CompetitorFinalizer
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - discoverer: Used to fetch and append competitors.
//   - matcher: The shared-series matcher bound to the classifier model.
//
// Outputs:
//   - *CompetitorFinalizer: A pointer to the newly instantiated command.
func NewCompetitorFinalizer(name string, discoverer *discovery.Discoverer, matcher *discovery.SharedSeriesMatcher) *CompetitorFinalizer {
	return &CompetitorFinalizer{
		BaseCommand: *cor.NewBaseCommand(name),
		discoverer:  discoverer,
		matcher:     matcher,
	}
}

// Execute finalizes the selected competitors.
func (t *CompetitorFinalizer) Execute(context cor.Context) {
	ctx := context.GetContext()
	project, ok := context.Get(t.GetInputParam()).(*model.Project)
	if !ok {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.New(errs.KindInternal, "finalization expects a project as input"))
		return
	}
	selected, _ := context.Get(KeySelectedChannels).([]string)
	if len(selected) == 0 {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("finalization requires at least one selected channel"))
		return
	}

	for i, channelID := range selected {
		context.ReportProgress(20+60*i/len(selected), "adding competitor "+channelID)

		alreadyKnown := project.HasCompetitor(channelID)
		competitor, err := t.discoverer.AddCompetitor(ctx, project, channelID, nil)
		if err != nil {
			t.GetErrorCounter().Add(ctx, 1)
			context.AddError(t.GetName(), err)
			return
		}
		if alreadyKnown {
			continue
		}

		if err := t.matchSharedSeries(context, project, competitor); err != nil {
			t.GetErrorCounter().Add(ctx, 1)
			context.AddError(t.GetName(), err)
			return
		}
	}
	project.Status = model.ProjectStatusFinalized

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}

// matchSharedSeries records which project series the competitor's recent
// titles belong to and updates the per-series channel sets.
func (t *CompetitorFinalizer) matchSharedSeries(context cor.Context, project *model.Project, competitor *model.CompetitorChannel) error {
	if project.Taxonomy == nil {
		return nil
	}
	titles := make([]string, 0, len(competitor.Videos))
	for _, video := range competitor.Videos {
		titles = append(titles, video.Title)
	}

	for _, series := range project.Taxonomy.Series {
		match, err := t.matcher.CheckShared(context.GetContext(), series, titles)
		if err != nil {
			return err
		}
		if match == nil {
			continue
		}
		competitor.MatchingSeries = append(competitor.MatchingSeries, match)
		addChannelToSeries(series, competitor.ChannelID)
	}
	return nil
}

// addChannelToSeries inserts the channel id into the series' sorted channel
// set, skipping duplicates.
func addChannelToSeries(series *model.Series, channelID string) {
	for _, existing := range series.ChannelsWithSeries {
		if existing == channelID {
			return
		}
	}
	series.ChannelsWithSeries = append(series.ChannelsWithSeries, channelID)
	sort.Strings(series.ChannelsWithSeries)
}
