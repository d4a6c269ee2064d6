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
// This file retrieves caption tracks through the public timed-text endpoint,
// which needs no API quota. A video without captions yields a nil transcript
// and no error; the script pipeline treats that as "skip this source".
package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

const timedTextEndpoint = "https://video.google.com/timedtext"

const transcriptLanguage = "en"

// timedTextDoc mirrors the endpoint's XML payload.
type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Body  string  `xml:",chardata"`
}

// GetTranscript fetches the English caption track for a video. A missing or
// empty track returns (nil, nil).
func (c *Client) GetTranscript(ctx context.Context, videoID string) (*model.Transcript, error) {
	endpoint := fmt.Sprintf("%s?lang=%s&v=%s", c.timedTextURL, transcriptLanguage, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to build transcript request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(err, errs.KindCancelled, "transcript fetch cancelled")
		}
		return nil, errs.Wrap(err, errs.KindUpstreamTransient, "transcript fetch failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindUpstreamTransient, "transcript endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindUpstreamTransient, "failed to read transcript body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		// The endpoint answers 200 with an empty body for caption-less videos.
		return nil, nil
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, errs.Wrap(err, errs.KindParse, "malformed transcript payload for video %q", videoID)
	}
	if len(doc.Texts) == 0 {
		return nil, nil
	}

	transcript := &model.Transcript{VideoID: videoID, Language: transcriptLanguage}
	for _, cue := range doc.Texts {
		text := strings.TrimSpace(html.UnescapeString(cue.Body))
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, &model.TranscriptSegment{
			Start: cue.Start,
			Dur:   cue.Dur,
			Text:  text,
		})
	}
	if len(transcript.Segments) == 0 {
		return nil, nil
	}
	return transcript, nil
}
