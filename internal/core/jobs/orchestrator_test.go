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

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// memStore is an in-memory job repository.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	secrets []*model.UserSecret
	updates int
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*model.Job{}}
}

func (m *memStore) CreateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memStore) UpdateJob(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *job
	m.jobs[job.ID] = &clone
	m.updates++
	return nil
}

func (m *memStore) ListSecrets(_ context.Context, _ string) ([]*model.UserSecret, error) {
	return m.secrets, nil
}

func (m *memStore) get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *m.jobs[id]
	return &clone
}

func waitForState(t *testing.T, store *memStore, jobID string, state model.JobState) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job := store.get(jobID); job.State == state {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", jobID, state)
	return nil
}

func TestStartReturnsRunningJobSynchronously(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(context.Background(), store, nil, 2)

	release := make(chan struct{})
	job, err := orch.Start(context.Background(), model.JobKindCreateProject, "user-1", "", func(ctx context.Context, exec *Execution) (string, error) {
		<-release
		return "projects/p-1", nil
	})
	require.NoError(t, err)

	// The record is persisted and running before the worker finishes.
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStateRunning, store.get(job.ID).State)

	close(release)
	done := waitForState(t, store, job.ID, model.JobStateComplete)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "projects/p-1", done.ResultRef)
	orch.Wait()
}

func TestProgressIsMonotonicAndCapped(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(context.Background(), store, nil, 1)

	job, err := orch.Start(context.Background(), model.JobKindAnalyzeCompetitors, "user-1", "p-1", func(ctx context.Context, exec *Execution) (string, error) {
		exec.Progress(40, "computing metrics")
		exec.Progress(10, "should not regress")
		exec.Progress(100, "should cap at 99")
		return "", nil
	})
	require.NoError(t, err)
	orch.Wait()

	final := store.get(job.ID)
	assert.Equal(t, model.JobStateComplete, final.State)
	assert.Equal(t, 100, final.Progress)
	// Three progress persists plus the terminal transition.
	assert.Equal(t, 4, store.updates)
}

func TestRunnerErrorBecomesTerminalError(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(context.Background(), store, nil, 1)

	job, err := orch.Start(context.Background(), model.JobKindGenerateScript, "user-1", "p-1", func(ctx context.Context, exec *Execution) (string, error) {
		exec.LogError("segment 3 used a placeholder")
		return "", errs.New(errs.KindUpstreamTransient, "model down")
	})
	require.NoError(t, err)
	orch.Wait()

	final := store.get(job.ID)
	assert.Equal(t, model.JobStateError, final.State)
	assert.Contains(t, final.Error, "model down")
	assert.Equal(t, []string{"segment 3 used a placeholder"}, final.ErrorLog)
}

func TestCancelMarksJobCancelled(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(context.Background(), store, nil, 1)

	started := make(chan struct{})
	job, err := orch.Start(context.Background(), model.JobKindDiscoverChannels, "user-1", "p-1", func(ctx context.Context, exec *Execution) (string, error) {
		close(started)
		<-ctx.Done()
		return "", errs.Wrap(ctx.Err(), errs.KindCancelled, "discovery aborted")
	})
	require.NoError(t, err)

	<-started
	assert.True(t, orch.Cancel(job.ID))
	orch.Wait()

	final := store.get(job.ID)
	assert.Equal(t, model.JobStateError, final.State)
	assert.Equal(t, "cancelled", final.Error)

	// A finished job can no longer be cancelled.
	assert.False(t, orch.Cancel(job.ID))
}

func TestWorkerPoolBound(t *testing.T) {
	store := newMemStore()
	orch := NewOrchestrator(context.Background(), store, nil, 1)

	var mu sync.Mutex
	inside, maxInside := 0, 0
	body := func(ctx context.Context, exec *Execution) (string, error) {
		mu.Lock()
		inside++
		if inside > maxInside {
			maxInside = inside
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inside--
		mu.Unlock()
		return "", nil
	}

	for i := 0; i < 4; i++ {
		_, err := orch.Start(context.Background(), model.JobKindPrepareResources, "user-1", "p-1", body)
		require.NoError(t, err)
	}
	orch.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestUserContextSnapshot(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-llm")
	t.Setenv("SEARCH_API_KEYS", "env-a, env-b")

	user := NewUserContext("user-1", []*model.UserSecret{
		{UserID: "user-1", Service: model.ServiceSearch, Key: "own-a,own-b,own-c"},
	})

	// Stored secrets override the environment; unset services fall back.
	assert.Equal(t, "env-llm", user.Secret(model.ServiceLLM))
	assert.Equal(t, []string{"own-a", "own-b", "own-c"}, user.SearchKeys())

	key, err := user.RequireSecret(model.ServiceLLM)
	require.NoError(t, err)
	assert.Equal(t, "env-llm", key)
}

func TestRequireSecretMissing(t *testing.T) {
	t.Setenv("IMAGE_MODEL_API_KEY", "")
	user := NewUserContext("user-1", nil)

	_, err := user.RequireSecret(model.ServiceImageModel)
	require.Error(t, err)
	assert.Equal(t, errs.KindMissingSecret, errs.KindOf(err))
	assert.Equal(t, 3, errs.KindOf(err).ExitCode())
}
