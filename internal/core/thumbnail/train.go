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
	"log/slog"
	"time"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Training poll defaults applied when the image model configuration leaves
// them zero.
const (
	defaultTrainingPollSeconds = 15
	defaultTrainingMaxSeconds  = 3600
)

// TrainingBackend is the fine-tuning adapter contract.
type TrainingBackend interface {
	// StartTraining uploads the references and begins a fine-tune, returning
	// an opaque job id.
	StartTraining(ctx context.Context, references []ReferenceImage, guidance TrainingGuidance) (string, error)
	// TrainingStatus reports whether the job finished. On completion the
	// trained model version and its trigger word are returned.
	TrainingStatus(ctx context.Context, jobID string) (done bool, version, triggerWord string, err error)
}

// Trainer drives a fine-tune to completion within the configured bounds.
type Trainer struct {
	backend TrainingBackend
	refs    ReferenceStore
	poll    time.Duration
	maxWait time.Duration
	sleep   func(context.Context, time.Duration) error
}

// NewTrainer creates a trainer with polling bounds from the image model
// configuration.
func NewTrainer(backend TrainingBackend, refs ReferenceStore, settings cloud.ImageModel) *Trainer {
	poll := time.Duration(settings.TrainingPollSeconds) * time.Second
	if poll <= 0 {
		poll = defaultTrainingPollSeconds * time.Second
	}
	maxWait := time.Duration(settings.TrainingMaxSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = defaultTrainingMaxSeconds * time.Second
	}
	return &Trainer{
		backend: backend,
		refs:    refs,
		poll:    poll,
		maxWait: maxWait,
		sleep:   sleepContext,
	}
}

// Train fine-tunes the image model on the project's reference thumbnails and
// records the resulting model version and trigger word on the assets.
//
// Outputs:
//   - error: validation error when no references exist, upstream error when
//     the run fails, or a transient error when the polling budget runs out
//     (the job keeps running server-side and a later retry can re-attach).
func (t *Trainer) Train(ctx context.Context, projectID string, assets *model.ThumbnailAssets, guidance TrainingGuidance) error {
	references, err := t.refs.ListImages(ctx, projectID)
	if err != nil {
		return err
	}
	if len(references) == 0 {
		return errs.Validation("training requires reference thumbnails for project %s", projectID)
	}

	jobID, err := t.backend.StartTraining(ctx, references, guidance)
	if err != nil {
		return err
	}
	slog.Info("started thumbnail model training",
		"project_id", projectID, "job_id", jobID, "references", len(references))

	deadline := time.Now().Add(t.maxWait)
	for {
		done, version, triggerWord, err := t.backend.TrainingStatus(ctx, jobID)
		if err != nil {
			return err
		}
		if done {
			assets.TrainedModelVersion = version
			assets.TriggerWord = triggerWord
			slog.Info("thumbnail model training complete",
				"project_id", projectID, "version", version)
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindUpstreamTransient,
				"training job %s still running after %s", jobID, t.maxWait)
		}
		if err := t.sleep(ctx, t.poll); err != nil {
			return errs.Wrap(err, errs.KindCancelled, "training poll cancelled")
		}
	}
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
