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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// fakeJSON scripts GenerateJSON results in order and records prompts.
type fakeJSON struct {
	prompts []string
	replies []breakdownWire
}

func (f *fakeJSON) GenerateJSON(_ context.Context, req llm.Request, out any) (*llm.Response, error) {
	f.prompts = append(f.prompts, req.Parts[0].Text)
	call := len(f.prompts) - 1
	if call >= len(f.replies) {
		return nil, errs.New(errs.KindUpstreamTransient, "no scripted reply")
	}
	*out.(*breakdownWire) = f.replies[call]
	return &llm.Response{}, nil
}

func transcriptOf(text string) *model.Transcript {
	return &model.Transcript{
		VideoID:  "vid1",
		Segments: []*model.TranscriptSegment{{Start: 0, Dur: 5, Text: text}},
	}
}

func TestBreakdownSingleSource(t *testing.T) {
	caller := &fakeJSON{replies: []breakdownWire{
		{IsClipReactive: false, ScriptBreakdown: "VIDEO STRUCTURE: [HOST_NAME] opens cold."},
	}}
	breakdowner := NewBreakdowner(caller)

	got, err := breakdowner.Breakdown(context.Background(), "Heists", "Bank Jobs", []*BreakdownSource{{
		Title:           "The $200M Vault",
		Description:     "A heist story.",
		DurationSeconds: 900,
		Transcript:      transcriptOf("tonight we break down the antwerp job"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "Heists", got.SeriesName)
	assert.Equal(t, "Bank Jobs", got.ThemeName)
	assert.False(t, got.IsClipReactive)
	assert.Contains(t, got.Breakdown, "[HOST_NAME]")

	// One analysis call, no merge.
	require.Len(t, caller.prompts, 1)
	assert.Contains(t, caller.prompts[0], "antwerp job")
	assert.Contains(t, caller.prompts[0], "00:15:00")
}

func TestBreakdownMergesMultipleSources(t *testing.T) {
	caller := &fakeJSON{replies: []breakdownWire{
		{IsClipReactive: true, ScriptBreakdown: "analysis one"},
		{IsClipReactive: false, ScriptBreakdown: "analysis two"},
		{IsClipReactive: false, ScriptBreakdown: "merged analysis"},
	}}
	breakdowner := NewBreakdowner(caller)

	got, err := breakdowner.Breakdown(context.Background(), "S", "T", []*BreakdownSource{
		{Title: "a", Transcript: transcriptOf("first")},
		{Title: "b", Transcript: transcriptOf("second")},
		{Title: "c"}, // no transcript, skipped
	})
	require.NoError(t, err)
	require.Len(t, caller.prompts, 3)
	assert.Contains(t, caller.prompts[2], "analysis one")
	assert.Contains(t, caller.prompts[2], "analysis two")
	assert.Equal(t, "merged analysis", got.Breakdown)

	// Clip reactivity survives the merge when any source had it.
	assert.True(t, got.IsClipReactive)
}

func TestBreakdownNoTranscripts(t *testing.T) {
	breakdowner := NewBreakdowner(&fakeJSON{})
	_, err := breakdowner.Breakdown(context.Background(), "S", "T", []*BreakdownSource{{Title: "a"}})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestBreakdownEmptyAnalysisIsParseError(t *testing.T) {
	caller := &fakeJSON{replies: []breakdownWire{{ScriptBreakdown: "   "}}}
	breakdowner := NewBreakdowner(caller)
	_, err := breakdowner.Breakdown(context.Background(), "S", "T", []*BreakdownSource{
		{Title: "a", Transcript: transcriptOf("text")},
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindParse, errs.KindOf(err))
}
