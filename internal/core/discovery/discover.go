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

// Package discovery finds potential competitor channels for a project and
// turns confirmed candidates into analyzed competitors.
//
// Logic Flow (discover):
//  1. Fan out one search per topic across every series and theme in the
//     taxonomy, bounded by a worker limit so the key pool is not hammered.
//  2. Every result from a channel other than the seed channel is recorded as
//     a candidate under its series, deduplicated by channel id.
//  3. Channel statistics are fetched best-effort; when the lookup fails the
//     candidate keeps the minimal stats carried by the search result.
//  4. A series stops accumulating once it has enough candidates. Individual
//     query failures are logged and skipped; discovery never fails because
//     one topic search did.
package discovery

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/search"
)

const (
	// SearchResultsPerTopic is the page size for each topic search.
	SearchResultsPerTopic = 50
	// CandidatesPerSeries is the accumulation cap per series.
	CandidatesPerSeries = 10
	// DefaultWorkerSlots bounds the concurrent topic searches.
	DefaultWorkerSlots = 8
)

// Discoverer runs competitor discovery against the search client.
type Discoverer struct {
	search search.Service
	slots  int
}

// NewDiscoverer creates a discoverer. slots <= 0 selects the default worker
// bound.
func NewDiscoverer(searchClient search.Service, slots int) *Discoverer {
	if slots <= 0 {
		slots = DefaultWorkerSlots
	}
	return &Discoverer{search: searchClient, slots: slots}
}

// seriesAccumulator collects candidates for one series under a lock shared
// by the fan-out workers.
type seriesAccumulator struct {
	mu         sync.Mutex
	seen       map[string]bool
	candidates []*model.CandidateChannel
	results    []*model.SearchResult
}

// Discover populates the project's search results and potential competitors
// from its taxonomy. The project is mutated in place; the caller owns
// persistence and locking.
func (d *Discoverer) Discover(ctx context.Context, project *model.Project) error {
	if project.Taxonomy == nil || len(project.Taxonomy.Series) == 0 {
		return nil
	}

	accumulators := make(map[string]*seriesAccumulator, len(project.Taxonomy.Series))
	for _, series := range project.Taxonomy.Series {
		accumulators[series.Name] = &seriesAccumulator{seen: map[string]bool{}}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.slots)

	for _, series := range project.Taxonomy.Series {
		acc := accumulators[series.Name]
		seriesName := series.Name
		for _, theme := range series.Themes {
			for _, topic := range theme.Topics {
				exampleTitle := topic.ExampleTitle
				group.Go(func() error {
					if err := groupCtx.Err(); err != nil {
						return err
					}
					acc.mu.Lock()
					full := len(acc.candidates) >= CandidatesPerSeries
					acc.mu.Unlock()
					if full {
						return nil
					}
					d.searchTopic(groupCtx, project, acc, seriesName, exampleTitle)
					return nil
				})
			}
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if project.SearchResults == nil {
		project.SearchResults = make(map[string][]*model.SearchResult)
	}
	if project.PotentialCompetitors == nil {
		project.PotentialCompetitors = make(map[string][]*model.CandidateChannel)
	}
	for name, acc := range accumulators {
		if len(acc.results) > 0 {
			project.SearchResults[name] = acc.results
		}
		if len(acc.candidates) > 0 {
			project.PotentialCompetitors[name] = acc.candidates
		}
	}
	project.Status = model.ProjectStatusDiscovered
	return nil
}

// searchTopic runs one topic search and folds the results into the series
// accumulator. Failures are logged and swallowed.
func (d *Discoverer) searchTopic(ctx context.Context, project *model.Project, acc *seriesAccumulator, seriesName, exampleTitle string) {
	results, err := d.search.Search(ctx, exampleTitle, SearchResultsPerTopic)
	if err != nil {
		slog.Warn("topic search failed", "query", exampleTitle, "error", err)
		return
	}

	acc.mu.Lock()
	acc.results = append(acc.results, results...)
	acc.mu.Unlock()

	for _, result := range results {
		if result.ChannelID == "" || result.ChannelID == project.SeedChannel.ChannelID {
			continue
		}
		acc.mu.Lock()
		if acc.seen[result.ChannelID] || len(acc.candidates) >= CandidatesPerSeries {
			full := len(acc.candidates) >= CandidatesPerSeries
			acc.mu.Unlock()
			if full {
				return
			}
			continue
		}
		acc.seen[result.ChannelID] = true
		acc.mu.Unlock()

		stats := d.channelStats(ctx, result)
		candidate := &model.CandidateChannel{Stats: *stats, FoundVia: exampleTitle, SeriesName: seriesName}
		acc.mu.Lock()
		acc.candidates = append(acc.candidates, candidate)
		acc.mu.Unlock()
	}
}

// channelStats fetches full statistics, degrading to the minimal stats from
// the search row on failure.
func (d *Discoverer) channelStats(ctx context.Context, result *model.SearchResult) *model.ChannelStats {
	stats, err := d.search.FetchChannel(ctx, result.ChannelID)
	if err != nil {
		slog.Warn("channel lookup failed, using search row stats",
			"channel_id", result.ChannelID, "error", err)
		return &model.ChannelStats{
			ChannelID:    result.ChannelID,
			Title:        result.ChannelTitle,
			ThumbnailURL: result.ThumbnailURL,
		}
	}
	return stats
}
