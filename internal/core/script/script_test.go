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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// dialogueOfWords builds a single dialogue line with exactly n words.
func dialogueOfWords(n int) string {
	return strings.TrimSpace(strings.Repeat("story ", n))
}

func smallOutline() *model.PlotOutline {
	return &model.PlotOutline{
		Title:            "The $200M Vault That Vanished",
		SeriesName:       "Heists",
		ThemeName:        "Bank Jobs",
		TotalDurationSec: 315,
		Segments: []*model.Segment{
			{Name: "The Vanishing Vault", Start: 0, End: 15, DurationSec: 15,
				KeyPoints: []string{"open on the empty vault photo"}},
			{Name: "Casing the District", Start: 15, End: 315, DurationSec: 300,
				KeyPoints: []string{"the security myth", "meet the crew"}},
		},
	}
}

func TestGeneratorHappyPath(t *testing.T) {
	caller := &fakeText{replies: []string{dialogueOfWords(500)}}
	generator := NewGenerator(caller)

	script, report, err := generator.Generate(context.Background(), ScriptParams{
		ProjectID:   "proj-1",
		Title:       "The $200M Vault That Vanished",
		Outline:     smallOutline(),
		Breakdown:   testBreakdown(),
		HostName:    "Joe",
		ChannelName: "Vault Stories",
	})
	require.NoError(t, err)
	require.Len(t, script.Segments, 2)

	assert.Equal(t, 0, script.Segments[0].Index)
	assert.Equal(t, "The Vanishing Vault (00:00:00 - 00:00:15, Duration: 00:00:15)", script.Segments[0].Header)
	assert.True(t, strings.HasPrefix(script.Segments[0].Body, "[JOE]: "))

	// One call per segment, each fully accounted.
	assert.Equal(t, 2, caller.callCount())
	require.Len(t, report.Segments, 2)
	assert.InDelta(t, 0.02, report.TotalCost, 1e-9)
	assert.Equal(t, int64(200), report.Usage.InputTokens)
	assert.Equal(t, int64(100), report.Usage.OutputTokens)

	rendered := script.Render()
	assert.Contains(t, rendered, model.SegmentBreak)

	// The breakdown prefix is cacheable and personalized.
	first := caller.requests[0]
	require.Len(t, first.Parts, 2)
	assert.True(t, first.Parts[0].Ephemeral)
	assert.Contains(t, first.Parts[0].Text, "Vault Stories")
	assert.NotContains(t, first.Parts[0].Text, "[CHANNEL_NAME]")
}

func TestGeneratorSponsorInjection(t *testing.T) {
	caller := &fakeText{replies: []string{dialogueOfWords(500)}}
	generator := NewGenerator(caller)

	_, _, err := generator.Generate(context.Background(), ScriptParams{
		Title:       "t",
		Outline:     smallOutline(),
		Breakdown:   testBreakdown(),
		HostName:    "Joe",
		SponsorName: "Acme VPN",
	})
	require.NoError(t, err)

	sponsored := 0
	for _, req := range caller.requests {
		if strings.Contains(req.Parts[1].Text, "Acme VPN") {
			sponsored++
		}
	}
	assert.Equal(t, 1, sponsored)
}

func TestGeneratorChunksLongSegment(t *testing.T) {
	outline := &model.PlotOutline{
		Title:            "t",
		TotalDurationSec: 900,
		Segments: []*model.Segment{
			// 15 minutes: minimum budget 2400 words, split into 2 chunks.
			{Name: "The Long Middle", Start: 0, End: 900, DurationSec: 900},
		},
	}
	caller := &fakeText{replies: []string{dialogueOfWords(700)}}
	generator := NewGenerator(caller)

	script, _, err := generator.Generate(context.Background(), ScriptParams{
		Title: "t", Outline: outline, Breakdown: testBreakdown(), HostName: "Joe",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, caller.callCount())

	second := caller.requests[1].Parts[1].Text
	assert.Contains(t, second, "part 2 of 2")
	assert.Contains(t, second, "Continue seamlessly")
	assert.Equal(t, 1400, countWords(script.Segments[0].Body))
}

func TestGeneratorPlaceholderAfterExhaustion(t *testing.T) {
	outline := &model.PlotOutline{
		Title:            "t",
		TotalDurationSec: 60,
		Segments:         []*model.Segment{{Name: "Doomed Bit", Start: 0, End: 60, DurationSec: 60}},
	}
	caller := &fakeText{failAll: errs.New(errs.KindUpstreamTransient, "backend down")}
	generator := NewGenerator(caller)

	script, report, err := generator.Generate(context.Background(), ScriptParams{
		Title: "t", Outline: outline, Breakdown: testBreakdown(), HostName: "Joe",
	})
	require.NoError(t, err)
	assert.Equal(t, placeholderBody, script.Segments[0].Body)
	assert.Equal(t, segmentAttempts*chunkAttempts, caller.callCount())
	assert.Zero(t, report.TotalCost)
}

func TestGeneratorCancellationPropagates(t *testing.T) {
	caller := &fakeText{failAll: errs.New(errs.KindCancelled, "shutting down")}
	generator := NewGenerator(caller)

	_, _, err := generator.Generate(context.Background(), ScriptParams{
		Title: "t", Outline: smallOutline(), Breakdown: testBreakdown(), HostName: "Joe",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindCancelled, errs.KindOf(err))
}

func TestGeneratorRequiresInputs(t *testing.T) {
	generator := NewGenerator(&fakeText{})
	_, _, err := generator.Generate(context.Background(), ScriptParams{Breakdown: testBreakdown()})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, _, err = generator.Generate(context.Background(), ScriptParams{Outline: smallOutline()})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestCleanSegmentBody(t *testing.T) {
	raw := `Here's the script for this segment:

[JOE]: The vault door was still locked.
The guards noticed nothing for two days.
The guards noticed nothing for two days.

Word count: 24`
	got := cleanSegmentBody(raw, "JOE")
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[JOE]: The vault door was still locked.", lines[0])
	assert.Equal(t, "[JOE]: The guards noticed nothing for two days.", lines[1])
}

func TestCleanSegmentBodyTrailers(t *testing.T) {
	raw := "[JOE]: Short line.\n(350 words)\n412"
	got := cleanSegmentBody(raw, "JOE")
	assert.Equal(t, "[JOE]: Short line.", got)
}

func TestCountWordsIgnoresTags(t *testing.T) {
	body := "[JOE]: one two three\n[GUEST HOST]: four five"
	assert.Equal(t, 5, countWords(body))
}

func TestHostTagFor(t *testing.T) {
	assert.Equal(t, "JOE SCOTT", hostTagFor(" Joe Scott "))
	assert.Equal(t, "HOST", hostTagFor(""))
}
