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

// Package search wraps the video platform's Data API behind a typed client.
// The client owns three policies the rest of the pipeline relies on:
//
//  1. Key rotation. A pool of API keys backs one service handle each; a
//     quota failure on the active key advances to the next, and only when
//     the whole pool is exhausted does QuotaExceeded surface.
//  2. Read-path fallback. Search queries that exhaust the pool fail over to
//     an HTML scrape of the public results page, returning the same reduced
//     result schema with no statistics beyond a view count.
//  3. Response caching. Every operation is idempotent, so responses are
//     cached in-process with a per-operation TTL.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Service is the operation surface consumed by discovery, taxonomy, and the
// script pipeline. Tests substitute fakes; production uses *Client.
type Service interface {
	ResolveChannel(ctx context.Context, channelURL string) (string, error)
	FetchChannel(ctx context.Context, channelID string) (*model.ChannelStats, error)
	ListChannelVideos(ctx context.Context, channelID string, limit int) ([]*model.Video, error)
	Search(ctx context.Context, query string, limit int) ([]*model.SearchResult, error)
	GetVideo(ctx context.Context, videoID string) (*model.Video, error)
	GetTranscript(ctx context.Context, videoID string) (*model.Transcript, error)
}

const maxPageSize = 50

var channelIDPattern = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// Client implements Service against the Data API with key rotation, caching,
// and the scrape fallback. Safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	services []*youtube.Service // one per API key, same order as the pool
	active   int

	httpClient *http.Client // transcript fetches and the scrape fallback

	// Overridable in tests; defaulted by NewClient.
	timedTextURL   string
	resultsPageURL string

	searchCache  *ttlCache
	channelCache *ttlCache
	videoCache   *ttlCache

	enableScrapeFallback bool
}

// NewClient builds one service handle per API key in the pool.
//
// Inputs:
//   - ctx: the root context for service construction.
//   - cfg: the search configuration (key pool, TTLs, fallback switch).
//   - httpClient: the plain HTTP client used by the non-API paths. Pass nil
//     for http.DefaultClient.
//
// Outputs:
//   - *Client: the ready client.
//   - error: a validation error when the pool is empty, or the first service
//     construction failure.
func NewClient(ctx context.Context, cfg cloud.Search, httpClient *http.Client) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, errs.Validation("search client requires at least one API key")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	services := make([]*youtube.Service, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		svc, err := youtube.NewService(ctx, option.WithAPIKey(key))
		if err != nil {
			return nil, fmt.Errorf("failed to create video platform service: %w", err)
		}
		services = append(services, svc)
	}

	return &Client{
		services:             services,
		httpClient:           httpClient,
		timedTextURL:         timedTextEndpoint,
		resultsPageURL:       resultsPageEndpoint,
		searchCache:          newTTLCache(time.Duration(cfg.SearchCacheTTLSecs) * time.Second),
		channelCache:         newTTLCache(time.Duration(cfg.ChannelCacheTTLSecs) * time.Second),
		videoCache:           newTTLCache(time.Duration(cfg.VideoCacheTTLSecs) * time.Second),
		enableScrapeFallback: cfg.EnableScrapeFallbck,
	}, nil
}

// withRotation runs op against the active service handle, advancing through
// the key pool on quota failures. Non-quota failures return immediately.
func (c *Client) withRotation(op func(svc *youtube.Service) error) error {
	tried := 0
	for tried < len(c.services) {
		c.mu.Lock()
		svc := c.services[c.active]
		c.mu.Unlock()

		err := op(svc)
		if err == nil {
			return nil
		}
		if !isQuotaError(err) {
			return err
		}

		tried++
		c.mu.Lock()
		c.active = (c.active + 1) % len(c.services)
		c.mu.Unlock()
		slog.Warn("api key quota exhausted, rotating", "keys_tried", tried, "pool_size", len(c.services))
	}
	return errs.New(errs.KindQuotaExceeded, "all %d api keys are quota exhausted", len(c.services))
}

// isQuotaError reports whether err is a quota or rate-limit rejection from
// the Data API.
func isQuotaError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 429 {
		return true
	}
	if apiErr.Code != 403 {
		return false
	}
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

// classify maps a Data API failure onto the core error kinds.
func classify(err error, notFoundMsg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 404:
			return errs.Wrap(err, errs.KindNotFound, "%s", notFoundMsg)
		case apiErr.Code >= 500:
			return errs.Wrap(err, errs.KindUpstreamTransient, "video platform backend error")
		}
	}
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}
	return errs.Wrap(err, errs.KindUpstreamTransient, "video platform request failed")
}

// ResolveChannel turns any accepted channel reference into a canonical
// channel id. Accepted forms: a bare channel id, a /channel/<id> URL, an
// @handle (bare or in a URL), and legacy /user/<name> or /c/<name> URLs.
func (c *Client) ResolveChannel(ctx context.Context, channelURL string) (string, error) {
	ref := strings.TrimSpace(channelURL)
	if ref == "" {
		return "", errs.Validation("channel url is empty")
	}
	if channelIDPattern.MatchString(ref) {
		return ref, nil
	}

	kind, value, err := parseChannelRef(ref)
	if err != nil {
		return "", err
	}

	switch kind {
	case refChannelID:
		return value, nil
	case refHandle:
		return c.lookupByHandle(ctx, value)
	case refUsername:
		return c.lookupByUsername(ctx, value)
	default:
		return "", errs.Validation("unrecognized channel url: %s", channelURL)
	}
}

// lookupByHandle resolves an @handle through the channels endpoint.
func (c *Client) lookupByHandle(ctx context.Context, handle string) (string, error) {
	var id string
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return errs.New(errs.KindNotFound, "no channel found for handle %q", handle)
		}
		id = resp.Items[0].Id
		return nil
	})
	if err != nil {
		return "", classify(err, fmt.Sprintf("no channel found for handle %q", handle))
	}
	return id, nil
}

// lookupByUsername resolves a legacy username, falling back to a channel
// search when the username endpoint comes back empty.
func (c *Client) lookupByUsername(ctx context.Context, username string) (string, error) {
	var id string
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Channels.List([]string{"id"}).ForUsername(username).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) > 0 {
			id = resp.Items[0].Id
			return nil
		}
		search, err := svc.Search.List([]string{"snippet"}).
			Q(username).Type("channel").MaxResults(1).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(search.Items) == 0 || search.Items[0].Snippet == nil {
			return errs.New(errs.KindNotFound, "no channel found for name %q", username)
		}
		id = search.Items[0].Snippet.ChannelId
		return nil
	})
	if err != nil {
		return "", classify(err, fmt.Sprintf("no channel found for name %q", username))
	}
	return id, nil
}

// FetchChannel returns the channel's statistics snapshot.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (*model.ChannelStats, error) {
	cacheName := "channel:" + channelID
	if hit, ok := c.channelCache.get(cacheName); ok {
		return hit.(*model.ChannelStats), nil
	}

	var stats *model.ChannelStats
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Channels.List([]string{"snippet", "statistics"}).
			Id(channelID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return errs.New(errs.KindNotFound, "channel %q not found", channelID)
		}
		stats = channelToStats(resp.Items[0])
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("channel %q not found", channelID))
	}
	c.channelCache.set(cacheName, stats)
	return stats, nil
}

// ListChannelVideos returns the channel's most recent uploads with full
// statistics, newest first, up to limit.
func (c *Client) ListChannelVideos(ctx context.Context, channelID string, limit int) ([]*model.Video, error) {
	if limit <= 0 {
		return nil, errs.Validation("video limit must be positive, got %d", limit)
	}
	cacheName := fmt.Sprintf("videos:%s:%d", channelID, limit)
	if hit, ok := c.videoCache.get(cacheName); ok {
		return hit.([]*model.Video), nil
	}

	videoIDs, err := c.listUploadIDs(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	videos, err := c.fetchVideoDetails(ctx, videoIDs)
	if err != nil {
		return nil, err
	}
	c.videoCache.set(cacheName, videos)
	return videos, nil
}

// listUploadIDs pages through the channel's uploads playlist collecting
// video ids until limit is reached.
func (c *Client) listUploadIDs(ctx context.Context, channelID string, limit int) ([]string, error) {
	var uploadsPlaylist string
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Channels.List([]string{"contentDetails"}).
			Id(channelID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
			return errs.New(errs.KindNotFound, "channel %q not found", channelID)
		}
		uploadsPlaylist = resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("channel %q not found", channelID))
	}

	ids := make([]string, 0, limit)
	pageToken := ""
	for len(ids) < limit {
		pageSize := int64(limit - len(ids))
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		var page *youtube.PlaylistItemListResponse
		err := c.withRotation(func(svc *youtube.Service) error {
			call := svc.PlaylistItems.List([]string{"contentDetails"}).
				PlaylistId(uploadsPlaylist).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			page, err = call.Do()
			return err
		})
		if err != nil {
			return nil, classify(err, fmt.Sprintf("uploads playlist for channel %q not found", channelID))
		}
		for _, item := range page.Items {
			if item.ContentDetails != nil {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return ids, nil
}

// fetchVideoDetails hydrates statistics and durations for the given ids in
// chunks of the API's per-request maximum.
func (c *Client) fetchVideoDetails(ctx context.Context, videoIDs []string) ([]*model.Video, error) {
	videos := make([]*model.Video, 0, len(videoIDs))
	for start := 0; start < len(videoIDs); start += maxPageSize {
		end := start + maxPageSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		var page *youtube.VideoListResponse
		err := c.withRotation(func(svc *youtube.Service) error {
			var err error
			page, err = svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
				Id(videoIDs[start:end]...).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, classify(err, "video batch lookup failed")
		}
		for _, item := range page.Items {
			videos = append(videos, videoToModel(item))
		}
	}
	return videos, nil
}

// Search runs a video search, falling back to the HTML scrape when the whole
// key pool is quota exhausted and the fallback is enabled.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*model.SearchResult, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	cacheName := fmt.Sprintf("search:%s:%d", query, limit)
	if hit, ok := c.searchCache.get(cacheName); ok {
		return hit.([]*model.SearchResult), nil
	}

	var results []*model.SearchResult
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Search.List([]string{"snippet"}).
			Q(query).Type("video").MaxResults(int64(limit)).Context(ctx).Do()
		if err != nil {
			return err
		}
		results = make([]*model.SearchResult, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.Id == nil || item.Snippet == nil {
				continue
			}
			results = append(results, &model.SearchResult{
				VideoID:      item.Id.VideoId,
				Title:        item.Snippet.Title,
				ChannelID:    item.Snippet.ChannelId,
				ChannelTitle: item.Snippet.ChannelTitle,
				ThumbnailURL: thumbnailFromSnippet(item.Snippet),
			})
		}
		return nil
	})
	if err != nil {
		if errs.IsKind(err, errs.KindQuotaExceeded) && c.enableScrapeFallback {
			slog.Warn("search quota exhausted, using scrape fallback", "query", query)
			return c.scrapeSearch(ctx, query, limit)
		}
		return nil, classify(err, "search request failed")
	}
	c.searchCache.set(cacheName, results)
	return results, nil
}

// GetVideo returns one video with full statistics.
func (c *Client) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	cacheName := "video:" + videoID
	if hit, ok := c.videoCache.get(cacheName); ok {
		return hit.(*model.Video), nil
	}

	var video *model.Video
	err := c.withRotation(func(svc *youtube.Service) error {
		resp, err := svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(videoID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return errs.New(errs.KindNotFound, "video %q not found", videoID)
		}
		video = videoToModel(resp.Items[0])
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("video %q not found", videoID))
	}
	c.videoCache.set(cacheName, video)
	return video, nil
}

// channelToStats maps an API channel resource to the local snapshot type.
func channelToStats(ch *youtube.Channel) *model.ChannelStats {
	stats := &model.ChannelStats{ChannelID: ch.Id}
	if ch.Snippet != nil {
		stats.Title = ch.Snippet.Title
		stats.Description = ch.Snippet.Description
		if published, err := time.Parse(time.RFC3339, ch.Snippet.PublishedAt); err == nil {
			stats.PublishedAt = published
		}
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			stats.ThumbnailURL = ch.Snippet.Thumbnails.Default.Url
		}
	}
	if ch.Statistics != nil {
		stats.SubscriberCount = int64(ch.Statistics.SubscriberCount)
		stats.ViewCount = int64(ch.Statistics.ViewCount)
		stats.VideoCount = int64(ch.Statistics.VideoCount)
	}
	return stats
}

// videoToModel maps an API video resource to the local summary type.
func videoToModel(v *youtube.Video) *model.Video {
	video := &model.Video{VideoID: v.Id}
	if v.Snippet != nil {
		video.ChannelID = v.Snippet.ChannelId
		video.Title = v.Snippet.Title
		video.Description = v.Snippet.Description
		if published, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			video.PublishedAt = published
		}
		if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
			video.ThumbnailURL = v.Snippet.Thumbnails.High.Url
		}
	}
	if v.Statistics != nil {
		video.Views = int64(v.Statistics.ViewCount)
		video.Likes = int64(v.Statistics.LikeCount)
		video.Comments = int64(v.Statistics.CommentCount)
	}
	if v.ContentDetails != nil {
		video.DurationSeconds = parseISODuration(v.ContentDetails.Duration)
	}
	return video
}

// thumbnailFromSnippet picks the best available thumbnail URL.
func thumbnailFromSnippet(s *youtube.SearchResultSnippet) string {
	if s.Thumbnails == nil {
		return ""
	}
	switch {
	case s.Thumbnails.High != nil:
		return s.Thumbnails.High.Url
	case s.Thumbnails.Medium != nil:
		return s.Thumbnails.Medium.Url
	case s.Thumbnails.Default != nil:
		return s.Thumbnails.Default.Url
	}
	return ""
}

// isoDurationPattern matches the API's ISO 8601 duration strings, e.g.
// "PT1H2M3S", "PT15M", "P1DT2H".
var isoDurationPattern = regexp.MustCompile(`P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// parseISODuration converts an ISO 8601 duration to whole seconds. Malformed
// input parses to zero.
func parseISODuration(raw string) int {
	m := isoDurationPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	days := atoiDefault(m[1])
	hours := atoiDefault(m[2])
	minutes := atoiDefault(m[3])
	seconds := atoiDefault(m[4])
	return ((days*24+hours)*60+minutes)*60 + seconds
}

func atoiDefault(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
