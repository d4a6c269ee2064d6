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

// Package taxonomy classifies a channel's video titles into the
// series/theme/topic hierarchy.
//
// Logic Flow:
//  1. Titles are truncated to the input ceiling and split into fixed-size
//     batches.
//  2. The first batch is classified from scratch with a schema-enforcing
//     prompt whose contract is total coverage: every input title appears as
//     exactly one topic example, duplicates preserved.
//  3. Later batches carry the full running hierarchy so the model merges new
//     titles into existing series and themes instead of inventing parallel
//     ones.
//  4. Each batch response is folded into the running hierarchy with a
//     deterministic merge: series keyed by name, themes keyed by name inside
//     their series, topics concatenated without deduplication.
//  5. A final coverage check appends any title the model dropped to a
//     "Miscellaneous" theme, so the coverage invariant holds regardless of
//     model behavior.
//
// A batch that fails classification after its retry budget contributes
// nothing; the failure is logged and the remaining batches proceed.
package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

const (
	// MaxVideos is the input ceiling; titles past it are ignored.
	MaxVideos = 9000
	// BatchSize is the number of titles classified per model call.
	BatchSize = 80
	// batchAttempts is the per-batch retry budget for parse failures.
	batchAttempts = 5
)

// Extractor classifies video titles into a taxonomy tree.
type Extractor struct {
	client        jsonCaller
	firstTemplate *template.Template
	mergeTemplate *template.Template
}

// jsonCaller is the narrow slice of the llm client the extractor needs.
type jsonCaller interface {
	GenerateJSON(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// NewExtractor creates an extractor bound to a classification model client.
func NewExtractor(client jsonCaller) *Extractor {
	return &Extractor{
		client:        client,
		firstTemplate: template.Must(template.New("classify").Parse(classifyPromptTemplate)),
		mergeTemplate: template.Must(template.New("merge").Parse(mergePromptTemplate)),
	}
}

// Classify builds the taxonomy tree for the channel's videos.
//
// Inputs:
//   - ctx: governs every model call.
//   - videos: the channel's uploads; only titles and view counts are read.
//   - channelTitle: used for the fallback series when every batch fails.
//
// Outputs:
//   - *model.TaxonomyTree: the aggregated, sorted hierarchy covering every
//     input title.
//   - error: a validation error for empty input, or a cancellation.
func (e *Extractor) Classify(ctx context.Context, videos []*model.Video, channelTitle string) (*model.TaxonomyTree, error) {
	titles := make([]string, 0, len(videos))
	for _, v := range videos {
		if strings.TrimSpace(v.Title) != "" {
			titles = append(titles, v.Title)
		}
	}
	if len(titles) == 0 {
		return nil, errs.Validation("no video titles")
	}
	if len(titles) > MaxVideos {
		slog.Warn("truncating classification input", "titles", len(titles), "ceiling", MaxVideos)
		titles = titles[:MaxVideos]
	}

	running := &model.TaxonomyWire{}
	for start := 0; start < len(titles); start += BatchSize {
		end := start + BatchSize
		if end > len(titles) {
			end = len(titles)
		}
		batch := titles[start:end]

		wire, err := e.classifyBatch(ctx, running, batch)
		if err != nil {
			if errs.KindOf(err) == errs.KindCancelled {
				return nil, err
			}
			slog.Error("batch classification failed, skipping batch",
				"batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}
		mergeWire(running, wire)
	}

	tree := wireToTree(running, videos)
	ensureCoverage(tree, titles, videos, channelTitle)
	tree.Recalculate()
	return tree, nil
}

// classifyBatch runs one batch through the model with the per-batch retry
// budget. The first batch (empty running hierarchy) uses the from-scratch
// prompt; later batches use the merge prompt.
func (e *Extractor) classifyBatch(ctx context.Context, running *model.TaxonomyWire, batch []string) (*model.TaxonomyWire, error) {
	prompt, err := e.buildPrompt(running, batch)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= batchAttempts; attempt++ {
		var wire model.TaxonomyWire
		_, err := e.client.GenerateJSON(ctx, llm.NewTextRequest(prompt), &wire)
		if err == nil {
			return &wire, nil
		}
		lastErr = err
		kind := errs.KindOf(err)
		if kind == errs.KindCancelled || kind == errs.KindUpstreamRefusal {
			return nil, err
		}
		slog.Warn("batch classification attempt failed", "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

// buildPrompt renders the appropriate template for the batch.
func (e *Extractor) buildPrompt(running *model.TaxonomyWire, batch []string) (string, error) {
	exampleJSON, err := json.Marshal(model.GetExampleTaxonomy())
	if err != nil {
		return "", errs.Wrap(err, errs.KindInternal, "failed to encode example taxonomy")
	}

	params := map[string]any{
		"Titles":      strings.Join(batch, "\n"),
		"ExampleJSON": string(exampleJSON),
	}
	tmpl := e.firstTemplate
	if len(running.Series) > 0 {
		runningJSON, err := json.Marshal(running)
		if err != nil {
			return "", errs.Wrap(err, errs.KindInternal, "failed to encode running hierarchy")
		}
		params["RunningJSON"] = string(runningJSON)
		tmpl = e.mergeTemplate
	}

	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, params); err != nil {
		return "", errs.Wrap(err, errs.KindInternal, "failed to execute classification template")
	}
	return buffer.String(), nil
}
