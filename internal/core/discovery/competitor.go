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

// Package discovery finds potential competitor channels. This file promotes
// a confirmed candidate to a finalized competitor: it fetches the channel's
// recent uploads and computes the derived growth and engagement metrics the
// metrics engine consumes.
package discovery

import (
	"context"
	"time"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

const (
	// CompetitorVideoSample is how many recent uploads feed the metrics.
	CompetitorVideoSample = 50
	// daysPerMonth is the mean Gregorian month length used throughout the
	// derived metrics.
	daysPerMonth = 30.44
)

// AddCompetitor fetches the channel and its recent uploads, computes derived
// metrics, and appends the competitor to the project. Adding a channel that
// is already a competitor returns the existing entry unchanged, which keeps
// the operation idempotent.
func (d *Discoverer) AddCompetitor(ctx context.Context, project *model.Project, channelID string, matching []*model.MatchingSeries) (*model.CompetitorChannel, error) {
	if channelID == project.SeedChannel.ChannelID {
		return nil, errs.Validation("the seed channel cannot be added as its own competitor")
	}
	for _, existing := range project.Competitors {
		if existing.ChannelID == channelID {
			return existing, nil
		}
	}

	stats, err := d.search.FetchChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videos, err := d.search.ListChannelVideos(ctx, channelID, CompetitorVideoSample)
	if err != nil {
		return nil, err
	}

	competitor := &model.CompetitorChannel{
		ChannelID:      channelID,
		Title:          stats.Title,
		Stats:          *stats,
		Videos:         videos,
		MatchingSeries: matching,
	}
	computeDerivedMetrics(competitor, time.Now().UTC())
	project.Competitors = append(project.Competitors, competitor)
	return competitor, nil
}

// computeDerivedMetrics fills the competitor's derived fields from its video
// sample and channel statistics.
//
// Derivations:
//   - upload_frequency: videos per month across the sample's publish span.
//   - monthly_views: lifetime view total spread over months active.
//   - monthly_sub_growth: subscribers per month since channel creation; when
//     the creation date is unknown, one percent of the subscriber count.
//   - growth_score: monthly_views/1000 + monthly_sub_growth*10 +
//     upload_frequency*5.
//   - engagement_rate: (likes+comments)/views across the sample.
func computeDerivedMetrics(c *model.CompetitorChannel, now time.Time) {
	var (
		totalViews    int64
		totalLikes    int64
		totalComments int64
		totalDuration int
		oldest        time.Time
		newest        time.Time
	)
	for _, v := range c.Videos {
		totalViews += v.Views
		totalLikes += v.Likes
		totalComments += v.Comments
		totalDuration += v.DurationSeconds
		if !v.PublishedAt.IsZero() {
			if oldest.IsZero() || v.PublishedAt.Before(oldest) {
				oldest = v.PublishedAt
			}
			if newest.IsZero() || v.PublishedAt.After(newest) {
				newest = v.PublishedAt
			}
		}
	}

	spanMonths := 1.0
	if !oldest.IsZero() && newest.After(oldest) {
		spanMonths = newest.Sub(oldest).Hours() / 24 / daysPerMonth
		if spanMonths < 1 {
			spanMonths = 1
		}
	}
	c.UploadFrequency = float64(len(c.Videos)) / spanMonths
	c.MonthlyViews = float64(totalViews) / spanMonths

	if c.Stats.PublishedAt.IsZero() {
		c.MonthlySubGrowth = float64(c.Stats.SubscriberCount) * 0.01
	} else {
		ageMonths := now.Sub(c.Stats.PublishedAt).Hours() / 24 / daysPerMonth
		if ageMonths < 1 {
			ageMonths = 1
		}
		c.MonthlySubGrowth = float64(c.Stats.SubscriberCount) / ageMonths
	}

	c.GrowthScore = c.MonthlyViews/1000 + c.MonthlySubGrowth*10 + c.UploadFrequency*5

	if len(c.Videos) > 0 {
		c.AvgVideoDuration = float64(totalDuration) / float64(len(c.Videos))
	}
	if totalViews > 0 {
		c.EngagementRate = float64(totalLikes+totalComments) / float64(totalViews)
	}
}
