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

// Package jobs runs background workflows as progress-tracked jobs. A job
// record is persisted before its worker starts, so callers always get the id
// synchronously and can poll immediately. Workers run under a bounded pool,
// carry an immutable user credential snapshot, and end in exactly one
// terminal transition, which also emits a best-effort lifecycle event.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// DefaultWorkerSlots bounds concurrent background jobs when the
// configuration leaves it zero.
const DefaultWorkerSlots = 4

// cancelledReason is the error recorded when a job is cancelled.
const cancelledReason = "cancelled"

// jobStore is the slice of the repository the orchestrator needs.
type jobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
	ListSecrets(ctx context.Context, userID string) ([]*model.UserSecret, error)
}

// Execution is what a runner receives: the job record, the user credential
// snapshot, and the progress sink.
type Execution struct {
	Job      *model.Job
	User     *UserContext
	Progress cor.ProgressFunc

	mu sync.Mutex
}

// LogError appends a non-fatal error to the job's error log. Used for
// degradations that do not fail the job, like placeholder script segments.
func (e *Execution) LogError(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Job.ErrorLog = append(e.Job.ErrorLog, message)
}

// Runner is one job kind's workflow body. It returns the result reference
// stored on the terminal job record.
type Runner func(ctx context.Context, exec *Execution) (resultRef string, err error)

// Orchestrator creates, runs, cancels and finalizes background jobs.
type Orchestrator struct {
	store   jobStore
	events  *cloud.JobEventPublisher
	slots   *semaphore.Weighted
	baseCtx context.Context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator.
//
// Inputs:
//   - baseCtx: the application root context. Workers derive from it, not
//     from the request context, so an HTTP disconnect never kills a job.
//   - store: the job repository.
//   - events: lifecycle event publisher; nil-safe.
//   - workerSlots: concurrent job bound, defaulted when zero.
func NewOrchestrator(baseCtx context.Context, store jobStore, events *cloud.JobEventPublisher, workerSlots int) *Orchestrator {
	if workerSlots <= 0 {
		workerSlots = DefaultWorkerSlots
	}
	return &Orchestrator{
		store:   store,
		events:  events,
		slots:   semaphore.NewWeighted(int64(workerSlots)),
		baseCtx: baseCtx,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start creates the job record, persists it, and launches its worker. The
// job is returned synchronously in state running.
//
// Inputs:
//   - ctx: the caller's context; governs only the secret snapshot and the
//     job insert, not the worker.
//   - kind, userID, projectID: job identity. projectID may be empty for
//     jobs that create the project themselves.
//   - runner: the workflow body executed by the worker.
func (o *Orchestrator) Start(ctx context.Context, kind model.JobKind, userID, projectID string, runner Runner) (*model.Job, error) {
	secrets, err := o.store.ListSecrets(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		ProjectID: projectID,
		State:     model.JobStateRunning,
		Progress:  0,
		Step:      "starting",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(jobCtx, job, NewUserContext(userID, secrets), runner)
	return job, nil
}

// Cancel requests cancellation of a running job. Returns false when the job
// is not running under this orchestrator.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every launched worker has finished. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run is the worker body: acquire a pool slot, execute the runner, and make
// exactly one terminal transition.
func (o *Orchestrator) run(ctx context.Context, job *model.Job, user *UserContext, runner Runner) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, job.ID)
		o.mu.Unlock()
	}()

	if err := o.slots.Acquire(ctx, 1); err != nil {
		o.finish(job, "", errs.Wrap(err, errs.KindCancelled, "job cancelled while queued"))
		return
	}
	defer o.slots.Release(1)

	exec := &Execution{Job: job, User: user}
	exec.Progress = func(percent int, step string) {
		exec.mu.Lock()
		if percent < job.Progress {
			percent = job.Progress // progress never moves backwards
		}
		if percent > 99 {
			percent = 99 // 100 is reserved for the terminal transition
		}
		job.Progress = percent
		job.Step = step
		job.UpdatedAt = time.Now().UTC()
		exec.mu.Unlock()
		// Persist with a non-cancellable context so a cancelled job still
		// records its last step.
		if err := o.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
			slog.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
	}

	resultRef, err := runner(ctx, exec)
	o.finish(job, resultRef, err)
}

// finish performs the terminal transition and emits the lifecycle event.
func (o *Orchestrator) finish(job *model.Job, resultRef string, err error) {
	job.UpdatedAt = time.Now().UTC()
	switch {
	case err == nil:
		job.State = model.JobStateComplete
		job.Progress = 100
		job.Step = "complete"
		job.ResultRef = resultRef
	case errs.KindOf(err) == errs.KindCancelled:
		job.State = model.JobStateError
		job.Error = cancelledReason
		job.Step = cancelledReason
	default:
		job.State = model.JobStateError
		job.Error = err.Error()
		job.Step = "failed"
	}

	if updateErr := o.store.UpdateJob(context.WithoutCancel(o.baseCtx), job); updateErr != nil {
		slog.Error("failed to persist terminal job state", "job_id", job.ID, "error", updateErr)
	}
	if err != nil {
		slog.Warn("job finished with error", "job_id", job.ID, "kind", job.Kind, "error", err)
	} else {
		slog.Info("job complete", "job_id", job.ID, "kind", job.Kind, "result_ref", resultRef)
	}

	o.events.Publish(context.WithoutCancel(o.baseCtx), cloud.JobEvent{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		State:     string(job.State),
		ProjectID: job.ProjectID,
		Error:     job.Error,
	})
}
