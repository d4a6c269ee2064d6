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

// Package discovery finds potential competitor channels. This file decides
// whether a candidate channel produces one of the project's series. The
// model picks the exact-matching subset of the candidate's recent titles;
// when the model is unavailable the decision falls back to plain substring
// matching, which is strictly less permissive but never blocks finalization.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"

	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// sharedSeriesPromptTemplate asks for the exact-matching subset as JSON.
const sharedSeriesPromptTemplate = `A YouTube series is defined by these example video titles:
{{range .ExampleTitles}}- {{.}}
{{end}}
Below are recent video titles from a different channel. Return the subset of those titles that belong to the SAME series: same recurring title structure, same kind of content. Match titles exactly as given; do not reword them. If none match, return an empty list.

Respond with JSON only, exactly in this shape:
{{.ExampleJSON}}

Candidate titles:
{{range .CandidateTitles}}- {{.}}
{{end}}`

// SharedSeriesMatcher decides series overlap between a project series and a
// candidate channel.
type SharedSeriesMatcher struct {
	client   jsonCaller
	template *template.Template
}

// jsonCaller is the slice of the llm client the matcher needs.
type jsonCaller interface {
	GenerateJSON(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// NewSharedSeriesMatcher creates a matcher bound to a model client.
func NewSharedSeriesMatcher(client jsonCaller) *SharedSeriesMatcher {
	return &SharedSeriesMatcher{
		client:   client,
		template: template.Must(template.New("shared").Parse(sharedSeriesPromptTemplate)),
	}
}

// CheckShared returns the matching-series record when the candidate's titles
// contain at least the eligibility threshold of matches for the series, and
// nil otherwise.
//
// Inputs:
//   - ctx: governs the model call.
//   - series: the project series with its example titles.
//   - candidateTitles: the candidate channel's recent video titles.
func (m *SharedSeriesMatcher) CheckShared(ctx context.Context, series *model.Series, candidateTitles []string) (*model.MatchingSeries, error) {
	exampleTitles := seriesExampleTitles(series)
	if len(exampleTitles) == 0 || len(candidateTitles) == 0 {
		return nil, nil
	}

	matches, err := m.modelMatches(ctx, exampleTitles, candidateTitles)
	if err != nil {
		slog.Warn("shared-series model call failed, using substring fallback",
			"series", series.Name, "error", err)
		matches = substringMatches(exampleTitles, candidateTitles)
	}

	// Only titles actually present on the candidate count toward the
	// threshold; the model sometimes invents plausible ones.
	matches = intersect(matches, candidateTitles)
	if len(matches) < model.SharedSeriesMinMatches {
		return nil, nil
	}
	return &model.MatchingSeries{SeriesName: series.Name, MatchingTitles: matches}, nil
}

// modelMatches asks the model for the exact-matching subset.
func (m *SharedSeriesMatcher) modelMatches(ctx context.Context, exampleTitles, candidateTitles []string) ([]string, error) {
	exampleJSON, err := json.Marshal(model.GetExampleSharedSeries())
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	err = m.template.Execute(&buffer, map[string]any{
		"ExampleTitles":   exampleTitles,
		"CandidateTitles": candidateTitles,
		"ExampleJSON":     string(exampleJSON),
	})
	if err != nil {
		return nil, err
	}

	var wire model.SharedSeriesWire
	if _, err := m.client.GenerateJSON(ctx, llm.NewTextRequest(buffer.String()), &wire); err != nil {
		return nil, err
	}
	return wire.MatchingTitles, nil
}

// substringMatches is the model-free fallback: a candidate title matches when
// it contains any example title (or vice versa), case-insensitively.
func substringMatches(exampleTitles, candidateTitles []string) []string {
	var matches []string
	for _, candidate := range candidateTitles {
		lowered := strings.ToLower(candidate)
		for _, example := range exampleTitles {
			exampleLowered := strings.ToLower(example)
			if strings.Contains(lowered, exampleLowered) || strings.Contains(exampleLowered, lowered) {
				matches = append(matches, candidate)
				break
			}
		}
	}
	return matches
}

// intersect keeps the entries of matches that appear in allowed, preserving
// order and dropping duplicates.
func intersect(matches, allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, title := range allowed {
		allowedSet[title] = true
	}
	var out []string
	seen := make(map[string]bool, len(matches))
	for _, title := range matches {
		if allowedSet[title] && !seen[title] {
			seen[title] = true
			out = append(out, title)
		}
	}
	return out
}

// seriesExampleTitles flattens the series' topic example titles.
func seriesExampleTitles(series *model.Series) []string {
	var titles []string
	for _, theme := range series.Themes {
		for _, topic := range theme.Topics {
			if topic.ExampleTitle != "" {
				titles = append(titles, topic.ExampleTitle)
			}
		}
	}
	return titles
}
