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

package script

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// fakeText scripts GenerateText responses in order and records every
// request.
type fakeText struct {
	mu       sync.Mutex
	requests []llm.Request
	replies  []string
	errors   []error
	failAll  error
}

func (f *fakeText) GenerateText(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failAll != nil {
		return nil, f.failAll
	}
	call := len(f.requests) - 1
	if call < len(f.errors) && f.errors[call] != nil {
		return nil, f.errors[call]
	}
	reply := ""
	if call < len(f.replies) {
		reply = f.replies[call]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return &llm.Response{
		Text:  reply,
		Usage: model.TokenUsage{InputTokens: 100, OutputTokens: 50},
		Cost:  0.01,
	}, nil
}

func (f *fakeText) CostOf(usage model.TokenUsage) float64 {
	return float64(usage.InputTokens+usage.OutputTokens) / 1e6
}

func (f *fakeText) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testBreakdown() *model.ScriptBreakdown {
	return &model.ScriptBreakdown{
		SeriesName: "Heists",
		ThemeName:  "Bank Jobs",
		Breakdown:  "VIDEO STRUCTURE: [HOST_NAME] opens cold on [CHANNEL_NAME].",
	}
}

const validStructure = `Video Structure

1. The Vanishing Vault (00:00:00 - 00:00:15, Duration: 00:00:15)
- open on the empty vault photo
- tease the missing $200M
2. Casing the Antwerp District (00:00:15 - 00:08:15, Duration: 00:08:00)
- the diamond district's security myth
- meet the crew
3. The Night of the Job (00:08:15 - 00:15:00, Duration: 00:06:45)
- the heat sensor trick
- the getaway mistake
`

func TestParseOutlineSegmentsAndKeyPoints(t *testing.T) {
	segments, err := parseOutline(validStructure)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, "The Vanishing Vault", segments[0].Name)
	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, 15, segments[0].End)
	assert.Equal(t, 15, segments[0].DurationSec)
	assert.Equal(t, []string{"open on the empty vault photo", "tease the missing $200M"}, segments[0].KeyPoints)

	assert.Equal(t, 495, segments[1].End)
	assert.Equal(t, 480, segments[1].DurationSec)
}

func TestParseOutlineAcceptsShortClock(t *testing.T) {
	segments, err := parseOutline("1. Quick Hook (00:00 - 00:15, Duration: 00:15)\n2. The Rest (00:15 - 05:00, Duration: 04:45)\n")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 15, segments[0].End)
	assert.Equal(t, 300, segments[1].End)
}

func TestParseOutlineNoSegments(t *testing.T) {
	_, err := parseOutline("I could not produce an outline.")
	require.Error(t, err)
	assert.Equal(t, errs.KindParse, errs.KindOf(err))
}

func TestValidateOutlineRules(t *testing.T) {
	segments, err := parseOutline(validStructure)
	require.NoError(t, err)
	require.NoError(t, validateOutline(segments, 900))

	// Total mismatch.
	err = validateOutline(segments, 901)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	// Gap between segments.
	gapped, _ := parseOutline("1. Hook Shot (00:00:00 - 00:00:10, Duration: 00:00:10)\n2. After Gap (00:00:20 - 00:01:00, Duration: 00:00:40)\n")
	assert.Error(t, validateOutline(gapped, 60))

	// Declared duration disagrees with the span.
	skewed, _ := parseOutline("1. Hook Shot (00:00:00 - 00:00:10, Duration: 00:00:15)\n")
	assert.Error(t, validateOutline(skewed, 10))

	// Segment over the cap.
	long, _ := parseOutline("1. Hook Shot (00:00:00 - 00:00:10, Duration: 00:00:10)\n2. Marathon Stretch (00:00:10 - 00:12:10, Duration: 00:12:00)\n")
	assert.Error(t, validateOutline(long, 730))

	// Intro over the hook cap.
	slow, _ := parseOutline("1. Slow Open (00:00:00 - 00:00:30, Duration: 00:00:30)\n2. The Rest (00:00:30 - 00:05:00, Duration: 00:04:30)\n")
	assert.Error(t, validateOutline(slow, 300))
}

func TestOutlinerGenerate(t *testing.T) {
	caller := &fakeText{replies: []string{validStructure}}
	outliner := NewOutliner(caller)

	outline, err := outliner.Generate(context.Background(), OutlineParams{
		Title:            "The $200M Vault That Vanished",
		TotalDurationSec: 900,
		Breakdown:        testBreakdown(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Heists", outline.SeriesName)
	assert.Equal(t, 900, outline.TotalDurationSec)
	require.Len(t, outline.Segments, 3)
	assert.Equal(t, 1, caller.callCount())
}

func TestOutlinerContinuationRecovery(t *testing.T) {
	truncated := `Video Structure

1. The Vanishing Vault (00:00:00 - 00:00:15, Duration: 00:00:15)
- open on the empty vault photo
2. Casing the Antwerp District (00:00:15 - 00:08:15, Duration: 00:08:00)
- meet the crew

Would you like me to continue with the remaining segments?`
	rest := "3. The Night of the Job (00:08:15 - 00:15:00, Duration: 00:06:45)\n- the heat sensor trick\n"

	caller := &fakeText{replies: []string{truncated, rest}}
	outliner := NewOutliner(caller)

	outline, err := outliner.Generate(context.Background(), OutlineParams{
		Title:            "The $200M Vault That Vanished",
		TotalDurationSec: 900,
		Breakdown:        testBreakdown(),
	})
	require.NoError(t, err)
	require.Len(t, outline.Segments, 3)
	assert.Equal(t, 2, caller.callCount())

	// The follow-up carries the text produced so far, minus the question.
	followUp := caller.requests[1]
	require.Len(t, followUp.Parts, 2)
	assert.Contains(t, followUp.Parts[1].Text, "Casing the Antwerp District")
	assert.NotContains(t, followUp.Parts[1].Text, continuationMarker)
}

func TestOutlinerValidationFailure(t *testing.T) {
	// Segments only cover 15 minutes of a 20 minute video.
	caller := &fakeText{replies: []string{validStructure}}
	outliner := NewOutliner(caller)

	_, err := outliner.Generate(context.Background(), OutlineParams{
		Title:            "The $200M Vault That Vanished",
		TotalDurationSec: 1200,
		Breakdown:        testBreakdown(),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestOutlinerRequiresBreakdown(t *testing.T) {
	outliner := NewOutliner(&fakeText{})
	_, err := outliner.Generate(context.Background(), OutlineParams{Title: "x", TotalDurationSec: 60})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestClockRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"00:00:15", 15},
		{"01:02:03", 3723},
		{"12:00:00", 43200},
		{"05:30", 330},
	} {
		got, err := parseClock(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	assert.Equal(t, "01:02:03", formatClock(3723))

	_, err := parseClock("12")
	assert.Error(t, err)
	_, err = parseClock("a:b:c")
	assert.Error(t, err)
}

func TestStripContinuationTail(t *testing.T) {
	text := "1. A (00:00:00 - 00:00:10, Duration: 00:00:10)\n\nWould you like me to continue?"
	got := stripContinuationTail(text)
	assert.False(t, strings.Contains(got, "Would you like"))
	assert.True(t, strings.HasSuffix(got, ")"))
}
