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

// Package script turns competitor material into generated video scripts in
// three stages: breakdown (style analysis of transcripts), outline
// (timestamped plot structure), and full script (per-segment dialogue).
//
// This file implements the breakdown stage. Each source transcript is
// analyzed into a reusable template capturing structure and writing voice;
// multiple analyses are merged into one unified breakdown. The result is the
// prompt foundation for both the outline and full-script stages.
package script

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// jsonCaller and textCaller are the slices of the llm client this package
// depends on.
type jsonCaller interface {
	GenerateJSON(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

type textCaller interface {
	GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error)
	CostOf(usage model.TokenUsage) float64
}

// BreakdownSource is one competitor video feeding the style analysis.
type BreakdownSource struct {
	Title           string
	Description     string
	DurationSeconds int
	Transcript      *model.Transcript
}

// breakdownWire is the JSON wrapper the model returns for each analysis.
type breakdownWire struct {
	IsClipReactive  bool   `json:"is_clip_reactive"`
	ScriptBreakdown string `json:"script_breakdown"`
}

// Breakdowner produces script breakdowns from transcripts.
type Breakdowner struct {
	client          jsonCaller
	analyzeTemplate *template.Template
	mergeTemplate   *template.Template
}

// NewBreakdowner creates a breakdowner bound to an analysis model client.
func NewBreakdowner(client jsonCaller) *Breakdowner {
	return &Breakdowner{
		client:          client,
		analyzeTemplate: template.Must(template.New("analyze").Parse(breakdownPromptTemplate)),
		mergeTemplate:   template.Must(template.New("bmerge").Parse(breakdownMergePromptTemplate)),
	}
}

// Breakdown analyzes the sources into one script breakdown for the
// (series, theme) pair.
//
// Inputs:
//   - ctx: governs every model call.
//   - seriesName, themeName: the taxonomy slot the breakdown belongs to.
//   - sources: competitor videos with transcripts. Sources without a
//     transcript are skipped.
//
// Outputs:
//   - *model.ScriptBreakdown: the unified analysis.
//   - error: validation error when no source has a transcript, or the model
//     failure after retries.
func (b *Breakdowner) Breakdown(ctx context.Context, seriesName, themeName string, sources []*BreakdownSource) (*model.ScriptBreakdown, error) {
	var usable []*BreakdownSource
	for _, src := range sources {
		if src.Transcript != nil && len(src.Transcript.Segments) > 0 {
			usable = append(usable, src)
		}
	}
	if len(usable) == 0 {
		return nil, errs.Validation("no transcripts available for series %q theme %q", seriesName, themeName)
	}

	analyses := make([]*breakdownWire, 0, len(usable))
	for _, src := range usable {
		wire, err := b.analyzeOne(ctx, src)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, wire)
	}

	final := analyses[0]
	if len(analyses) > 1 {
		merged, err := b.mergeAnalyses(ctx, analyses)
		if err != nil {
			return nil, err
		}
		final = merged
	}

	return &model.ScriptBreakdown{
		SeriesName:     seriesName,
		ThemeName:      themeName,
		IsClipReactive: final.IsClipReactive,
		Breakdown:      final.ScriptBreakdown,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// analyzeOne runs the style-analysis prompt over a single transcript.
func (b *Breakdowner) analyzeOne(ctx context.Context, src *BreakdownSource) (*breakdownWire, error) {
	var buffer bytes.Buffer
	err := b.analyzeTemplate.Execute(&buffer, map[string]any{
		"Title":       src.Title,
		"Description": src.Description,
		"Duration":    formatClock(src.DurationSeconds),
		"Transcript":  src.Transcript.Text(),
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to execute breakdown template")
	}

	var wire breakdownWire
	if _, err := b.client.GenerateJSON(ctx, llm.NewTextRequest(buffer.String()), &wire); err != nil {
		return nil, err
	}
	if strings.TrimSpace(wire.ScriptBreakdown) == "" {
		return nil, errs.New(errs.KindParse, "breakdown analysis came back empty for %q", src.Title)
	}
	return &wire, nil
}

// mergeAnalyses asks the model to fold the per-video analyses into one
// unified breakdown preserving timing detail. The merged result is
// clip-reactive when any source was.
func (b *Breakdowner) mergeAnalyses(ctx context.Context, analyses []*breakdownWire) (*breakdownWire, error) {
	parts := make([]string, 0, len(analyses))
	anyClipReactive := false
	for i, a := range analyses {
		parts = append(parts, "--- ANALYSIS "+strconv.Itoa(i+1)+" ---\n"+a.ScriptBreakdown)
		anyClipReactive = anyClipReactive || a.IsClipReactive
	}

	var buffer bytes.Buffer
	err := b.mergeTemplate.Execute(&buffer, map[string]any{
		"Analyses": strings.Join(parts, "\n\n"),
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.KindInternal, "failed to execute breakdown merge template")
	}

	var wire breakdownWire
	if _, err := b.client.GenerateJSON(ctx, llm.NewTextRequest(buffer.String()), &wire); err != nil {
		return nil, err
	}
	if strings.TrimSpace(wire.ScriptBreakdown) == "" {
		return nil, errs.New(errs.KindParse, "merged breakdown came back empty")
	}
	wire.IsClipReactive = wire.IsClipReactive || anyClipReactive
	return &wire, nil
}
