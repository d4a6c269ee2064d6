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

// Plot outline generation. The model writes a "Video Structure" numbered
// list with exact timestamps; this file prompts for it, recovers from
// truncated responses, parses the list, and validates the timing math
// before anything downstream sees it.
package script

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// maxContinuations bounds recovery calls when the model stops mid-list and
// asks whether to keep going.
const maxContinuations = 3

// continuationMarker is the tell-tale phrase of a truncated response.
const continuationMarker = "Would you like me to continue"

// segmentLinePattern matches one numbered Video Structure line:
//
//	3. The Vault Heist (00:05:20 - 00:12:40, Duration: 00:07:20)
//
// Timestamps may also appear as MM:SS.
var segmentLinePattern = regexp.MustCompile(`^\s*\d+\.\s+(.+?)\s+\((\d{1,3}:\d{2}(?::\d{2})?)\s*-\s*(\d{1,3}:\d{2}(?::\d{2})?),\s*Duration:\s*(\d{1,3}:\d{2}(?::\d{2})?)\)`)

// OutlineParams carries everything one outline generation needs.
type OutlineParams struct {
	Title            string
	TotalDurationSec int
	Breakdown        *model.ScriptBreakdown
}

// Outliner generates validated plot outlines.
type Outliner struct {
	client   textCaller
	template *template.Template
}

// NewOutliner creates an outliner bound to a text model client.
func NewOutliner(client textCaller) *Outliner {
	return &Outliner{
		client:   client,
		template: template.Must(template.New("outline").Parse(outlinePromptTemplate)),
	}
}

// Generate produces the plot outline for the given title and duration.
//
// Inputs:
//   - ctx: governs the model calls.
//   - params: title, total duration in seconds, and the script breakdown to
//     follow.
//
// Outputs:
//   - *model.PlotOutline: segments with validated timing.
//   - error: validation error when the parsed segments break the timing
//     rules, parse error when no Video Structure list is found.
func (o *Outliner) Generate(ctx context.Context, params OutlineParams) (*model.PlotOutline, error) {
	if params.TotalDurationSec <= 0 {
		return nil, errs.Validation("total duration must be positive, got %d", params.TotalDurationSec)
	}
	if params.Breakdown == nil || strings.TrimSpace(params.Breakdown.Breakdown) == "" {
		return nil, errs.Validation("plot outline requires a script breakdown")
	}

	var buffer bytes.Buffer
	err := o.template.Execute(&buffer, map[string]any{
		"Title":         params.Title,
		"TotalDuration": formatClock(params.TotalDurationSec),
		"Breakdown":     params.Breakdown.Breakdown,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to execute outline template")
	}

	text, err := o.generateComplete(ctx, buffer.String())
	if err != nil {
		return nil, err
	}

	segments, err := parseOutline(text)
	if err != nil {
		return nil, err
	}
	if err := validateOutline(segments, params.TotalDurationSec); err != nil {
		return nil, err
	}

	return &model.PlotOutline{
		Title:            params.Title,
		SeriesName:       params.Breakdown.SeriesName,
		ThemeName:        params.Breakdown.ThemeName,
		TotalDurationSec: params.TotalDurationSec,
		Segments:         segments,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// generateComplete issues the outline prompt and, when the model stops to
// ask permission, up to maxContinuations follow-up calls whose outputs are
// appended to the structure text.
func (o *Outliner) generateComplete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.GenerateText(ctx, llm.NewTextRequest(prompt))
	if err != nil {
		return "", err
	}
	text := resp.Text

	for calls := 0; calls < maxContinuations && strings.Contains(text, continuationMarker); calls++ {
		trimmed := stripContinuationTail(text)
		followUp := llm.Request{Parts: []llm.Part{
			{Text: prompt, Ephemeral: true},
			{Text: formatContinuation(trimmed)},
		}}
		resp, err = o.client.GenerateText(ctx, followUp)
		if err != nil {
			return "", err
		}
		text = trimmed + "\n" + resp.Text
	}
	return text, nil
}

// stripContinuationTail cuts the "Would you like me to continue" question
// and anything after it.
func stripContinuationTail(text string) string {
	idx := strings.Index(text, continuationMarker)
	if idx < 0 {
		return text
	}
	return strings.TrimRight(text[:idx], " \n\t?")
}

func formatContinuation(soFar string) string {
	return strings.Replace(outlineContinuationPrompt, "%s", soFar, 1)
}

// parseOutline extracts the numbered segment lines and their bullet points.
func parseOutline(text string) ([]*model.Segment, error) {
	var segments []*model.Segment
	var current *model.Segment

	for _, line := range strings.Split(text, "\n") {
		if match := segmentLinePattern.FindStringSubmatch(line); match != nil {
			start, err := parseClock(match[2])
			if err != nil {
				return nil, err
			}
			end, err := parseClock(match[3])
			if err != nil {
				return nil, err
			}
			duration, err := parseClock(match[4])
			if err != nil {
				return nil, err
			}
			current = &model.Segment{
				Name:        strings.TrimSpace(match[1]),
				Start:       start,
				End:         end,
				DurationSec: duration,
			}
			segments = append(segments, current)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if current != nil && strings.HasPrefix(trimmed, "- ") {
			current.KeyPoints = append(current.KeyPoints, strings.TrimPrefix(trimmed, "- "))
		}
	}

	if len(segments) == 0 {
		parseErr := errs.New(errs.KindParse, "no Video Structure segments found in outline response")
		parseErr.Payload = text
		return nil, parseErr
	}
	return segments, nil
}

// validateOutline enforces the timing rules: contiguous coverage from zero
// to the total duration, consistent per-line durations, a hook within the
// intro limit, and no segment over the maximum length.
func validateOutline(segments []*model.Segment, totalSec int) error {
	expectedStart := 0
	for i, seg := range segments {
		if seg.Start != expectedStart {
			return errs.Validation("segment %d (%q) starts at %s, expected %s",
				i+1, seg.Name, formatClock(seg.Start), formatClock(expectedStart))
		}
		if seg.End <= seg.Start {
			return errs.Validation("segment %d (%q) has non-positive span", i+1, seg.Name)
		}
		if got := seg.End - seg.Start; got != seg.DurationSec {
			return errs.Validation("segment %d (%q) declares duration %s but spans %s",
				i+1, seg.Name, formatClock(seg.DurationSec), formatClock(got))
		}
		if seg.DurationSec > model.MaxSegmentSeconds {
			return errs.Validation("segment %d (%q) runs %s, exceeding the %s cap",
				i+1, seg.Name, formatClock(seg.DurationSec), formatClock(model.MaxSegmentSeconds))
		}
		expectedStart = seg.End
	}
	if segments[0].DurationSec > model.MaxIntroSeconds {
		return errs.Validation("opening hook runs %s, exceeding the %d second cap",
			formatClock(segments[0].DurationSec), model.MaxIntroSeconds)
	}
	if expectedStart != totalSec {
		return errs.Validation("segments cover %s of a %s video",
			formatClock(expectedStart), formatClock(totalSec))
	}
	return nil
}
