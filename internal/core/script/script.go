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

// Full-script generation. Each outline segment becomes one model task sized
// by speaking pace; long segments are split into chunks generated in
// sequence. Segments run concurrently under a bounded limit, failures fall
// back to a placeholder line after retries, and every model call is folded
// into a cost report.
package script

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Speaking-pace word budgets and chunking bounds.
const (
	wordsPerMinuteTarget = 170
	wordsPerMinuteMin    = 160

	// Segments whose minimum word budget exceeds this are generated in
	// chunks to stay inside the model's reliable output window.
	chunkThresholdWords = 1600
	wordsPerChunk       = 2000

	chunkAttempts         = 3
	segmentAttempts       = 5
	maxConcurrentSegments = 5
)

// placeholderBody replaces a segment that failed every attempt, so the
// script stays renderable and the gap is obvious to the editor.
const placeholderBody = "[HOST_NAME]: Error generating content for this segment."

// ScriptParams carries everything one full-script generation needs.
type ScriptParams struct {
	ProjectID   string
	Title       string
	Outline     *model.PlotOutline
	Breakdown   *model.ScriptBreakdown
	HostName    string
	ChannelName string
	SponsorName string
}

// Generator writes full scripts from validated plot outlines.
type Generator struct {
	client   textCaller
	template *template.Template
}

// NewGenerator creates a script generator bound to a text model client.
func NewGenerator(client textCaller) *Generator {
	return &Generator{
		client:   client,
		template: template.Must(template.New("segment").Parse(scriptSegmentPromptTemplate)),
	}
}

// Generate writes the full script for every segment of the outline.
//
// Inputs:
//   - ctx: cancelling it aborts all in-flight segments.
//   - params: outline, breakdown, and the channel identity substituted into
//     the breakdown's placeholders.
//
// Outputs:
//   - *model.FullScript: one rendered segment per outline segment, in order.
//     Segments that failed every attempt carry the placeholder body.
//   - *model.CostReport: token and dollar accounting for every model call,
//     including failed attempts.
//   - error: only cancellation or missing inputs; generation failures
//     degrade to placeholders instead.
func (g *Generator) Generate(ctx context.Context, params ScriptParams) (*model.FullScript, *model.CostReport, error) {
	if params.Outline == nil || len(params.Outline.Segments) == 0 {
		return nil, nil, errs.Validation("script generation requires a plot outline with segments")
	}
	if params.Breakdown == nil || strings.TrimSpace(params.Breakdown.Breakdown) == "" {
		return nil, nil, errs.Validation("script generation requires a script breakdown")
	}

	hostTag := hostTagFor(params.HostName)
	guidelines := personalizeBreakdown(params.Breakdown.Breakdown, params.ChannelName, params.HostName)

	segments := make([]*model.ScriptSegment, len(params.Outline.Segments))
	costs := make([]*model.SegmentCost, len(params.Outline.Segments))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSegments)
	for i, seg := range params.Outline.Segments {
		group.Go(func() error {
			body, cost, err := g.generateSegment(groupCtx, params, guidelines, hostTag, i, seg)
			if err != nil {
				return err
			}
			segments[i] = &model.ScriptSegment{
				Index:  i,
				Header: segmentHeader(seg),
				Body:   body,
			}
			costs[i] = cost
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	report := &model.CostReport{}
	for _, cost := range costs {
		report.AddSegment(cost)
	}

	return &model.FullScript{
		ProjectID:  params.ProjectID,
		Title:      params.Title,
		SeriesName: params.Outline.SeriesName,
		ThemeName:  params.Outline.ThemeName,
		Segments:   segments,
		CreatedAt:  time.Now().UTC(),
	}, report, nil
}

// generateSegment produces one segment's dialogue, retrying whole-segment
// failures and degrading to the placeholder body when every attempt fails.
// Only cancellation propagates as an error.
func (g *Generator) generateSegment(ctx context.Context, params ScriptParams, guidelines, hostTag string, index int, seg *model.Segment) (string, *model.SegmentCost, error) {
	cost := &model.SegmentCost{Index: index, Name: seg.Name}

	minutes := float64(seg.DurationSec) / 60
	targetWords := int(minutes * wordsPerMinuteTarget)
	minWords := int(minutes * wordsPerMinuteMin)

	var lastErr error
	for attempt := 1; attempt <= segmentAttempts; attempt++ {
		body, err := g.generateSegmentOnce(ctx, params, guidelines, hostTag, index, seg, targetWords, minWords, cost)
		if err == nil {
			return body, cost, nil
		}
		lastErr = err
		if errs.KindOf(err) == errs.KindCancelled {
			return "", nil, err
		}
		slog.Warn("segment generation attempt failed",
			"segment", seg.Name, "attempt", attempt, "error", err)
	}

	slog.Error("segment generation exhausted all attempts, inserting placeholder",
		"segment", seg.Name, "error", lastErr)
	return placeholderBody, cost, nil
}

// generateSegmentOnce runs one attempt, chunked when the word budget is
// large, and validates the cleaned result against the minimum length.
func (g *Generator) generateSegmentOnce(ctx context.Context, params ScriptParams, guidelines, hostTag string, index int, seg *model.Segment, targetWords, minWords int, cost *model.SegmentCost) (string, error) {
	chunkCount := 1
	if minWords > chunkThresholdWords {
		chunkCount = int(math.Ceil(float64(minWords) / wordsPerChunk))
	}

	var bodies []string
	for chunk := 0; chunk < chunkCount; chunk++ {
		prompt, err := g.buildSegmentPrompt(params, hostTag, index, seg,
			targetWords/chunkCount, minWords/chunkCount, chunk, chunkCount, tailOf(bodies))
		if err != nil {
			return "", err
		}
		body, err := g.generateChunk(ctx, guidelines, prompt, hostTag, minWords/chunkCount, cost)
		if err != nil {
			return "", err
		}
		bodies = append(bodies, body)
	}

	full := strings.Join(bodies, "\n")
	if got := countWords(full); got < minWords/2 {
		return "", errs.New(errs.KindParse, "segment %q came back with %d words, needed at least %d",
			seg.Name, got, minWords)
	}
	return full, nil
}

// generateChunk retries a single chunk call, accumulating usage from every
// call into the segment cost. A chunk under half its minimum budget is
// treated as a failed attempt.
func (g *Generator) generateChunk(ctx context.Context, guidelines, prompt, hostTag string, minWords int, cost *model.SegmentCost) (string, error) {
	request := llm.Request{Parts: []llm.Part{
		{Text: guidelines, Ephemeral: true},
		{Text: prompt},
	}}

	var lastErr error
	for attempt := 1; attempt <= chunkAttempts; attempt++ {
		resp, err := g.client.GenerateText(ctx, request)
		if resp != nil {
			cost.Usage.Add(resp.Usage)
			cost.Cost += resp.Cost
		}
		if err != nil {
			if errs.KindOf(err) == errs.KindCancelled {
				return "", err
			}
			lastErr = err
			continue
		}
		body := cleanSegmentBody(resp.Text, hostTag)
		if countWords(body) >= minWords/2 {
			return body, nil
		}
		lastErr = errs.New(errs.KindParse, "chunk came back too short")
	}
	return "", errs.Wrap(lastErr, errs.KindUpstreamTransient, "chunk failed after %d attempts", chunkAttempts)
}

// buildSegmentPrompt renders the per-segment prompt, including sponsor
// instructions for the segment right after the hook and chunk continuation
// context when the segment is split.
func (g *Generator) buildSegmentPrompt(params ScriptParams, hostTag string, index int, seg *model.Segment, targetWords, minWords, chunk, chunkCount int, previousTail string) (string, error) {
	keyPoints := "- (use the breakdown's segment template)"
	if len(seg.KeyPoints) > 0 {
		keyPoints = "- " + strings.Join(seg.KeyPoints, "\n- ")
	}

	sponsorBlock := ""
	if params.SponsorName != "" && index == 1 {
		sponsorBlock = fmt.Sprintf(scriptSponsorInstructions, params.SponsorName)
	}

	chunkBlock := ""
	if chunkCount > 1 {
		chunkBlock = fmt.Sprintf("- This is part %d of %d of the segment. ", chunk+1, chunkCount)
		if previousTail == "" {
			chunkBlock += "Start the segment from its beginning and stop mid-flow; later parts will continue it.\n"
		} else {
			chunkBlock += "Continue seamlessly from this earlier dialogue, without repeating it:\n" + previousTail + "\n"
		}
	}

	var buffer bytes.Buffer
	err := g.template.Execute(&buffer, map[string]any{
		"Title":         params.Title,
		"SegmentName":   seg.Name,
		"SegmentWindow": formatClock(seg.Start) + " - " + formatClock(seg.End),
		"KeyPoints":     keyPoints,
		"TargetWords":   targetWords,
		"MinWords":      minWords,
		"Duration":      formatClock(seg.DurationSec),
		"HostTag":       hostTag,
		"SponsorBlock":  sponsorBlock,
		"ChunkBlock":    chunkBlock,
	})
	if err != nil {
		return "", errs.Wrap(err, errs.KindInternal, "failed to execute segment template")
	}
	return buffer.String(), nil
}

// personalizeBreakdown substitutes the real channel identity into the
// breakdown's placeholders.
func personalizeBreakdown(breakdown, channelName, hostName string) string {
	if channelName != "" {
		breakdown = strings.ReplaceAll(breakdown, "[CHANNEL_NAME]", channelName)
	}
	if hostName != "" {
		breakdown = strings.ReplaceAll(breakdown, "[HOST_NAME]", hostName)
	}
	return breakdown
}

// segmentHeader renders the outline segment as the script's header line.
func segmentHeader(seg *model.Segment) string {
	return fmt.Sprintf("%s (%s - %s, Duration: %s)",
		seg.Name, formatClock(seg.Start), formatClock(seg.End), formatClock(seg.DurationSec))
}

// tailOf returns the closing lines of the chunks generated so far, used as
// continuation context.
func tailOf(bodies []string) string {
	if len(bodies) == 0 {
		return ""
	}
	last := bodies[len(bodies)-1]
	lines := strings.Split(last, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, "\n")
}
