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

package thumbnail

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// DefaultImagesPerConcept is how many variants each concept renders when the
// caller does not say otherwise.
const DefaultImagesPerConcept = 2

// ImageBackend is the image model adapter contract. The model is hosted by
// an external provider; the pipeline only depends on these two calls.
type ImageBackend interface {
	// Generate renders count images for the prompt on the given model
	// version and returns their raw bytes.
	Generate(ctx context.Context, modelVersion, prompt string, guidanceScale float64, count int) ([][]byte, error)
}

// assetSaver is the slice of AssetStore the renderer needs.
type assetSaver interface {
	Save(ctx context.Context, projectID string, data []byte) (string, error)
}

// Renderer turns concepts into stored thumbnail objects.
type Renderer struct {
	backend ImageBackend
	assets  assetSaver
	limiter *rate.Limiter
}

// NewRenderer creates a renderer. The request rate comes from the image
// model configuration; a zero limit means unthrottled.
func NewRenderer(backend ImageBackend, assets assetSaver, settings cloud.ImageModel) *Renderer {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if settings.MaxRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(settings.MaxRequestsPerMinute)/60.0), 1)
	}
	return &Renderer{backend: backend, assets: assets, limiter: limiter}
}

// Render generates thumbnails for every concept and records the stored
// object paths on the project's thumbnail assets.
//
// Inputs:
//   - ctx: governs rate waits, model calls and storage writes.
//   - projectID: object path prefix for the rendered files.
//   - assets: must carry a trained model version, trigger word and the
//     guideline document; updated in place with concepts and object paths.
//   - concepts: one prompt core per desired thumbnail idea.
//   - perConcept: variants per concept, defaulted when zero.
//
// Outputs:
//   - error: validation error when the assets are not ready for generation;
//     upstream errors otherwise. Individual failed concepts are logged and
//     skipped as long as at least one concept rendered.
func (r *Renderer) Render(ctx context.Context, projectID string, assets *model.ThumbnailAssets, concepts []string, perConcept int) error {
	if assets == nil || assets.TrainedModelVersion == "" || assets.TriggerWord == "" {
		return errs.Validation("thumbnail generation requires a trained model and trigger word")
	}
	if len(concepts) == 0 {
		return errs.Validation("thumbnail generation requires at least one concept")
	}
	if perConcept <= 0 {
		perConcept = DefaultImagesPerConcept
	}

	guidance, err := guidanceFrom(assets.GuidelinesJSON)
	if err != nil {
		return err
	}

	rendered := 0
	for _, concept := range concepts {
		if err := r.limiter.Wait(ctx); err != nil {
			return errs.Wrap(err, errs.KindCancelled, "thumbnail generation cancelled")
		}

		prompt := buildPrompt(assets.TriggerWord, concept, guidance)
		images, err := r.backend.Generate(ctx, assets.TrainedModelVersion, prompt, guidance.GuidanceScale, perConcept)
		if err != nil {
			if errs.KindOf(err) == errs.KindCancelled {
				return err
			}
			slog.Warn("concept generation failed, skipping", "concept", concept, "error", err)
			continue
		}

		for _, img := range images {
			path, err := r.assets.Save(ctx, projectID, img)
			if err != nil {
				slog.Warn("failed to store rendered thumbnail", "concept", concept, "error", err)
				continue
			}
			assets.RenderedURLs = append(assets.RenderedURLs, path)
		}
		assets.Concepts = append(assets.Concepts, concept)
		rendered++
	}

	if rendered == 0 {
		return errs.New(errs.KindUpstreamTransient, "every thumbnail concept failed to render")
	}
	return nil
}

// buildPrompt assembles the generation prompt: trigger word first so the
// fine-tuned weights activate, then the concept inside the style-preserving
// guidance scaffolding.
func buildPrompt(triggerWord, concept string, guidance *Guidelines) string {
	var sb strings.Builder
	sb.WriteString(triggerWord)
	sb.WriteString(", ")
	sb.WriteString(guidance.TrainingGuidance.PromptPrefix)
	sb.WriteString(strings.TrimSpace(concept))
	sb.WriteString(guidance.TrainingGuidance.PromptSuffix)
	return sb.String()
}

// guidanceFrom deserializes the persisted guideline document, defaulting the
// scaffolding when a legacy document predates it.
func guidanceFrom(doc string) (*Guidelines, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, errs.Validation("thumbnail generation requires analyzed guidelines")
	}
	var guidelines Guidelines
	if err := json.Unmarshal([]byte(doc), &guidelines); err != nil {
		return nil, errs.Wrap(err, errs.KindParse, "stored thumbnail guidelines are unreadable")
	}
	if guidelines.GuidanceScale == 0 {
		guidelines.GuidanceScale = defaultGuidanceScale
	}
	if guidelines.TrainingGuidance.PromptPrefix == "" {
		guidelines.TrainingGuidance.PromptPrefix = trainingGuidancePrefix
	}
	if guidelines.TrainingGuidance.PromptSuffix == "" {
		guidelines.TrainingGuidance.PromptSuffix = trainingGuidanceSuffix
	}
	return &guidelines, nil
}
