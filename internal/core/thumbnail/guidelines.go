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

// Package thumbnail builds a channel's thumbnail identity and renders new
// thumbnails with it. The pipeline has three stages: a vision pass over
// reference thumbnails producing a guideline document, an optional
// fine-tuning run on the image model, and per-concept generation whose
// outputs land in object storage behind signed URLs.
package thumbnail

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
)

// jsonCaller is the slice of the llm client the analyzer needs.
type jsonCaller interface {
	GenerateJSON(ctx context.Context, req llm.Request, out any) (*llm.Response, error)
}

// ReferenceImage is one operator-supplied reference thumbnail.
type ReferenceImage struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ReferenceStore lists the reference thumbnails uploaded for a project.
type ReferenceStore interface {
	ListImages(ctx context.Context, prefix string) ([]ReferenceImage, error)
}

// TrainingGuidance is the prompt scaffolding carried into the image model:
// Prefix and Suffix bracket every training caption and generation prompt so
// the fine-tune preserves the series' visual identity.
type TrainingGuidance struct {
	PromptPrefix string `json:"prompt_prefix"`
	PromptSuffix string `json:"prompt_suffix"`
}

// Guidelines is the fixed-schema document produced by the reference
// analysis. GuidanceScale and TrainingGuidance are filled locally from the
// style classification, not by the model.
type Guidelines struct {
	LayoutZones      []string         `json:"layout_zones"`
	Typography       string           `json:"typography"`
	Overlays         []string         `json:"overlays"`
	SeriesConstants  []string         `json:"series_constants"`
	ColorPalette     []string         `json:"color_palette"`
	StyleClass       string           `json:"style_class"`
	GuidanceScale    float64          `json:"guidance_scale"`
	TrainingGuidance TrainingGuidance `json:"training_guidance"`
}

// guidanceScales maps the vision pass's style classification to the
// diffusion guidance scale used at generation time. Stylized artwork needs
// stronger prompt adherence than photography.
var guidanceScales = map[string]float64{
	"photorealistic": 3.5,
	"cinematic":      4.5,
	"illustrated":    7.0,
	"cartoon":        7.5,
	"graphic":        8.5,
	"text_heavy":     9.0,
}

const defaultGuidanceScale = 7.0

// Training guidance scaffolding applied around every caption and prompt.
const (
	trainingGuidancePrefix = "YouTube thumbnail in the channel's signature style, "
	trainingGuidanceSuffix = ", high contrast, sharp focus, 16:9 composition, no watermarks"
)

// guidelinesPrompt drives the vision pass. The reference images follow the
// prompt as inline parts.
const guidelinesPrompt = `You are a thumbnail art director. Study the reference thumbnails attached to
this message. They are from one YouTube channel and share a visual identity.

Respond with ONLY a JSON object with these fields:
{
  "layout_zones": ["<where faces, subjects and text sit, one entry per zone>"],
  "typography": "<font weight, casing, stroke and shadow treatment>",
  "overlays": ["<recurring overlay elements: arrows, circles, borders>"],
  "series_constants": ["<elements that appear in every thumbnail>"],
  "color_palette": ["<dominant colors as plain names or hex>"],
  "style_class": "<exactly one of: photorealistic, cinematic, illustrated, cartoon, graphic, text_heavy>"
}`

// Analyzer runs the vision pass over a project's reference thumbnails.
type Analyzer struct {
	client jsonCaller
	refs   ReferenceStore
}

// NewAnalyzer creates an analyzer bound to a vision-capable model client and
// the reference image store.
func NewAnalyzer(client jsonCaller, refs ReferenceStore) *Analyzer {
	return &Analyzer{client: client, refs: refs}
}

// AnalyzeReferences produces the guideline document for a project.
//
// Inputs:
//   - ctx: governs the storage reads and the model call.
//   - projectID: object prefix under which the references were uploaded.
//
// Outputs:
//   - *Guidelines: the parsed document with guidance scale and training
//     guidance filled in.
//   - string: the document serialized to JSON, the form persisted on the
//     project.
//   - error: validation error when no readable references exist.
func (a *Analyzer) AnalyzeReferences(ctx context.Context, projectID string) (*Guidelines, string, error) {
	images, err := a.refs.ListImages(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	if len(images) == 0 {
		return nil, "", errs.Validation("no reference thumbnails uploaded for project %s", projectID)
	}

	parts := []llm.Part{{Text: guidelinesPrompt}}
	for _, img := range images {
		parts = append(parts, llm.Part{ImageData: img.Data, MIMEType: img.MIMEType})
	}

	var guidelines Guidelines
	if _, err := a.client.GenerateJSON(ctx, llm.Request{Parts: parts}, &guidelines); err != nil {
		return nil, "", err
	}

	guidelines.StyleClass = strings.ToLower(strings.TrimSpace(guidelines.StyleClass))
	guidelines.GuidanceScale = guidanceScaleFor(guidelines.StyleClass)
	guidelines.TrainingGuidance = TrainingGuidance{
		PromptPrefix: trainingGuidancePrefix,
		PromptSuffix: trainingGuidanceSuffix,
	}

	doc, err := json.Marshal(&guidelines)
	if err != nil {
		return nil, "", errs.Wrap(err, errs.KindInternal, "failed to serialize guidelines")
	}
	slog.Info("analyzed thumbnail references",
		"project_id", projectID, "references", len(images), "style", guidelines.StyleClass)
	return &guidelines, string(doc), nil
}

// guidanceScaleFor maps a style class to its guidance scale.
func guidanceScaleFor(styleClass string) float64 {
	if scale, ok := guidanceScales[styleClass]; ok {
		return scale
	}
	return defaultGuidanceScale
}
