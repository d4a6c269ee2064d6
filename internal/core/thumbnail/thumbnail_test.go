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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// fakeRefs serves in-memory reference images.
type fakeRefs struct {
	images []ReferenceImage
	err    error
}

func (f *fakeRefs) ListImages(_ context.Context, _ string) ([]ReferenceImage, error) {
	return f.images, f.err
}

// fakeVision scripts the guideline JSON response.
type fakeVision struct {
	requests []llm.Request
	reply    Guidelines
	err      error
}

func (f *fakeVision) GenerateJSON(_ context.Context, req llm.Request, out any) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	*out.(*Guidelines) = f.reply
	return &llm.Response{}, nil
}

func pngBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
}

func TestAnalyzeReferences(t *testing.T) {
	refs := &fakeRefs{images: []ReferenceImage{
		{Name: "p/1.png", MIMEType: "image/png", Data: pngBytes()},
		{Name: "p/2.png", MIMEType: "image/png", Data: pngBytes()},
	}}
	vision := &fakeVision{reply: Guidelines{
		LayoutZones: []string{"face left third"},
		Typography:  "bold uppercase with heavy stroke",
		StyleClass:  "Graphic",
	}}
	analyzer := NewAnalyzer(vision, refs)

	guidelines, doc, err := analyzer.AnalyzeReferences(context.Background(), "proj-1")
	require.NoError(t, err)

	// Style class is normalized and mapped through the guidance table.
	assert.Equal(t, "graphic", guidelines.StyleClass)
	assert.InDelta(t, 8.5, guidelines.GuidanceScale, 1e-9)
	assert.Equal(t, trainingGuidancePrefix, guidelines.TrainingGuidance.PromptPrefix)

	// The persisted document round-trips.
	var decoded Guidelines
	require.NoError(t, json.Unmarshal([]byte(doc), &decoded))
	assert.Equal(t, guidelines.GuidanceScale, decoded.GuidanceScale)

	// Prompt text first, then one inline part per reference.
	require.Len(t, vision.requests, 1)
	parts := vision.requests[0].Parts
	require.Len(t, parts, 3)
	assert.NotEmpty(t, parts[0].Text)
	assert.Equal(t, "image/png", parts[1].MIMEType)
}

func TestAnalyzeReferencesNoImages(t *testing.T) {
	analyzer := NewAnalyzer(&fakeVision{}, &fakeRefs{})
	_, _, err := analyzer.AnalyzeReferences(context.Background(), "proj-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestGuidanceScaleFor(t *testing.T) {
	assert.InDelta(t, 3.5, guidanceScaleFor("photorealistic"), 1e-9)
	assert.InDelta(t, 9.0, guidanceScaleFor("text_heavy"), 1e-9)
	assert.InDelta(t, defaultGuidanceScale, guidanceScaleFor("unknown"), 1e-9)
}

// fakeBackend scripts image generation.
type fakeBackend struct {
	prompts  []string
	scales   []float64
	images   [][]byte
	failFor  map[string]error
	versions []string
}

func (f *fakeBackend) Generate(_ context.Context, version, prompt string, scale float64, count int) ([][]byte, error) {
	f.prompts = append(f.prompts, prompt)
	f.scales = append(f.scales, scale)
	f.versions = append(f.versions, version)
	for concept, err := range f.failFor {
		if strings.Contains(prompt, concept) {
			return nil, err
		}
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, f.images[i%len(f.images)])
	}
	return out, nil
}

// fakeSaver records saved thumbnails.
type fakeSaver struct {
	saved int
	err   error
}

func (f *fakeSaver) Save(_ context.Context, projectID string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved++
	return fmt.Sprintf("%s/render-%d.png", projectID, f.saved), nil
}

func readyAssets(t *testing.T) *model.ThumbnailAssets {
	t.Helper()
	doc, err := json.Marshal(&Guidelines{
		StyleClass:    "graphic",
		GuidanceScale: 8.5,
		TrainingGuidance: TrainingGuidance{
			PromptPrefix: trainingGuidancePrefix,
			PromptSuffix: trainingGuidanceSuffix,
		},
	})
	require.NoError(t, err)
	return &model.ThumbnailAssets{
		GuidelinesJSON:      string(doc),
		TrainedModelVersion: "ft-v3",
		TriggerWord:         "VLTSTYLE",
	}
}

func TestRender(t *testing.T) {
	backend := &fakeBackend{images: [][]byte{pngBytes()}}
	saver := &fakeSaver{}
	renderer := NewRenderer(backend, saver, cloud.ImageModel{})

	assets := readyAssets(t)
	err := renderer.Render(context.Background(), "proj-1", assets,
		[]string{"empty vault door", "diamond district at night"}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"empty vault door", "diamond district at night"}, assets.Concepts)
	assert.Len(t, assets.RenderedURLs, 4)
	assert.Equal(t, 4, saver.saved)

	// Prompt shape: trigger word, guidance prefix, concept, suffix.
	require.Len(t, backend.prompts, 2)
	assert.Contains(t, backend.prompts[0], "VLTSTYLE, ")
	assert.Contains(t, backend.prompts[0], "empty vault door")
	assert.Contains(t, backend.prompts[0], trainingGuidanceSuffix)
	assert.InDelta(t, 8.5, backend.scales[0], 1e-9)
	assert.Equal(t, "ft-v3", backend.versions[0])
}

func TestRenderSkipsFailedConcepts(t *testing.T) {
	backend := &fakeBackend{
		images:  [][]byte{pngBytes()},
		failFor: map[string]error{"bad concept": errs.New(errs.KindUpstreamTransient, "nope")},
	}
	renderer := NewRenderer(backend, &fakeSaver{}, cloud.ImageModel{})

	assets := readyAssets(t)
	err := renderer.Render(context.Background(), "proj-1", assets, []string{"bad concept", "good concept"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"good concept"}, assets.Concepts)
	assert.Len(t, assets.RenderedURLs, 1)
}

func TestRenderAllConceptsFail(t *testing.T) {
	backend := &fakeBackend{
		images:  [][]byte{pngBytes()},
		failFor: map[string]error{"doomed": errs.New(errs.KindUpstreamTransient, "nope")},
	}
	renderer := NewRenderer(backend, &fakeSaver{}, cloud.ImageModel{})

	err := renderer.Render(context.Background(), "proj-1", readyAssets(t), []string{"doomed"}, 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamTransient, errs.KindOf(err))
}

func TestRenderRequiresTraining(t *testing.T) {
	renderer := NewRenderer(&fakeBackend{}, &fakeSaver{}, cloud.ImageModel{})
	err := renderer.Render(context.Background(), "p", &model.ThumbnailAssets{}, []string{"c"}, 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

// fakeTrainer scripts the fine-tune lifecycle.
type fakeTrainer struct {
	polls     int
	doneAfter int
	startErr  error
}

func (f *fakeTrainer) StartTraining(_ context.Context, refs []ReferenceImage, _ TrainingGuidance) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-1", nil
}

func (f *fakeTrainer) TrainingStatus(_ context.Context, jobID string) (bool, string, string, error) {
	f.polls++
	if f.polls >= f.doneAfter {
		return true, "ft-v4", "VLTSTYLE", nil
	}
	return false, "", "", nil
}

func TestTrainerPollsToCompletion(t *testing.T) {
	backend := &fakeTrainer{doneAfter: 3}
	refs := &fakeRefs{images: []ReferenceImage{{Name: "p/1.png", Data: pngBytes()}}}
	trainer := NewTrainer(backend, refs, cloud.ImageModel{TrainingPollSeconds: 1})
	trainer.sleep = func(context.Context, time.Duration) error { return nil }

	assets := &model.ThumbnailAssets{}
	require.NoError(t, trainer.Train(context.Background(), "proj-1", assets, TrainingGuidance{}))
	assert.Equal(t, "ft-v4", assets.TrainedModelVersion)
	assert.Equal(t, "VLTSTYLE", assets.TriggerWord)
	assert.Equal(t, 3, backend.polls)
}

func TestTrainerTimesOut(t *testing.T) {
	backend := &fakeTrainer{doneAfter: 1 << 30}
	refs := &fakeRefs{images: []ReferenceImage{{Name: "p/1.png", Data: pngBytes()}}}
	trainer := NewTrainer(backend, refs, cloud.ImageModel{TrainingPollSeconds: 1, TrainingMaxSeconds: 1})
	trainer.maxWait = 0
	trainer.sleep = func(context.Context, time.Duration) error { return nil }

	err := trainer.Train(context.Background(), "proj-1", &model.ThumbnailAssets{}, TrainingGuidance{})
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamTransient, errs.KindOf(err))
}

func TestTrainerRequiresReferences(t *testing.T) {
	trainer := NewTrainer(&fakeTrainer{}, &fakeRefs{}, cloud.ImageModel{})
	err := trainer.Train(context.Background(), "proj-1", &model.ThumbnailAssets{}, TrainingGuidance{})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
