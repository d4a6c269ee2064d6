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
// This file implements the quota-free fallback: scraping the public results
// page and walking the embedded initial-data JSON for video renderer nodes.
// The fallback returns the same reduced result schema as the API path, so
// callers never need to know which path served them.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

const resultsPageEndpoint = "https://www.youtube.com/results"

const initialDataMarker = "var ytInitialData = "

// scrapeSearch fetches the public results page for the query and extracts
// video renderer entries from the embedded JSON blob.
func (c *Client) scrapeSearch(ctx context.Context, query string, limit int) ([]*model.SearchResult, error) {
	endpoint := fmt.Sprintf("%s?search_query=%s", c.resultsPageURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to build scrape request")
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(err, errs.KindCancelled, "scrape fetch cancelled")
		}
		return nil, errs.Wrap(err, errs.KindUpstreamTransient, "scrape fetch failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindUpstreamTransient, "results page returned status %d", resp.StatusCode)
	}
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindUpstreamTransient, "failed to read results page")
	}

	results, err := extractSearchResults(string(page), limit)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// extractSearchResults locates the initial-data blob in the page and walks it
// for video renderer nodes, up to limit.
func extractSearchResults(page string, limit int) ([]*model.SearchResult, error) {
	start := strings.Index(page, initialDataMarker)
	if start < 0 {
		return nil, errs.New(errs.KindParse, "results page is missing the initial data blob")
	}
	blob, err := extractJSONObject(page[start+len(initialDataMarker):])
	if err != nil {
		return nil, errs.Wrap(err, errs.KindParse, "failed to isolate initial data JSON")
	}

	var root any
	if err := json.Unmarshal([]byte(blob), &root); err != nil {
		return nil, errs.Wrap(err, errs.KindParse, "failed to decode initial data JSON")
	}

	results := make([]*model.SearchResult, 0, limit)
	collectVideoRenderers(root, &results, limit)
	return results, nil
}

// collectVideoRenderers walks the decoded JSON tree depth-first, appending a
// result for every videoRenderer node until limit is reached.
func collectVideoRenderers(node any, results *[]*model.SearchResult, limit int) {
	if len(*results) >= limit {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if renderer, ok := v["videoRenderer"].(map[string]any); ok {
			if result := rendererToResult(renderer); result != nil {
				*results = append(*results, result)
				if len(*results) >= limit {
					return
				}
			}
		}
		for _, child := range v {
			collectVideoRenderers(child, results, limit)
		}
	case []any:
		for _, child := range v {
			collectVideoRenderers(child, results, limit)
		}
	}
}

// rendererToResult maps one videoRenderer node to the reduced result schema.
// Nodes without a video id or title are skipped.
func rendererToResult(renderer map[string]any) *model.SearchResult {
	videoID, _ := renderer["videoId"].(string)
	if videoID == "" {
		return nil
	}
	result := &model.SearchResult{VideoID: videoID}

	result.Title = firstRunText(renderer["title"])
	if result.Title == "" {
		return nil
	}

	if owner, ok := renderer["ownerText"].(map[string]any); ok {
		if runs, ok := owner["runs"].([]any); ok && len(runs) > 0 {
			if run, ok := runs[0].(map[string]any); ok {
				result.ChannelTitle, _ = run["text"].(string)
				result.ChannelID = browseIDFromRun(run)
			}
		}
	}

	if viewCount, ok := renderer["viewCountText"].(map[string]any); ok {
		if simple, ok := viewCount["simpleText"].(string); ok {
			result.Views = parseViewCount(simple)
		}
	}

	if thumb, ok := renderer["thumbnail"].(map[string]any); ok {
		if thumbs, ok := thumb["thumbnails"].([]any); ok && len(thumbs) > 0 {
			if last, ok := thumbs[len(thumbs)-1].(map[string]any); ok {
				result.ThumbnailURL, _ = last["url"].(string)
			}
		}
	}
	return result
}

// firstRunText extracts the first text run from a title-like node, accepting
// both the runs form and the simpleText form.
func firstRunText(node any) string {
	m, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if simple, ok := m["simpleText"].(string); ok {
		return simple
	}
	if runs, ok := m["runs"].([]any); ok && len(runs) > 0 {
		if run, ok := runs[0].(map[string]any); ok {
			text, _ := run["text"].(string)
			return text
		}
	}
	return ""
}

// browseIDFromRun digs the channel id out of a text run's navigation
// endpoint.
func browseIDFromRun(run map[string]any) string {
	nav, ok := run["navigationEndpoint"].(map[string]any)
	if !ok {
		return ""
	}
	browse, ok := nav["browseEndpoint"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := browse["browseId"].(string)
	return id
}

// parseViewCount converts strings like "1,234,567 views" to an integer.
// Unparseable strings (e.g. "No views") yield zero.
func parseViewCount(s string) int64 {
	var n int64
	seen := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int64(r-'0')
			seen = true
		} else if seen && r == ' ' {
			break
		}
	}
	return n
}

// extractJSONObject returns the first balanced JSON object at the start of s.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no object start found")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated object")
}
