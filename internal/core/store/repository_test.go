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

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(cloud.Database{DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	require.NoError(t, err)
	return NewStore(db)
}

func newTestProject(owner string) *model.Project {
	return &model.Project{
		ID:      uuid.NewString(),
		Name:    "History Channel Analysis",
		OwnerID: owner,
		SeedChannel: model.ChannelStats{
			ChannelID: "UCabcdefghijklmnopqrstuv",
			Title:     "History for Sleep",
		},
		Status: model.ProjectStatusInitial,
	}
}

func TestProjectRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := newTestProject("user-1")
	project.Taxonomy = &model.TaxonomyTree{
		Series: []*model.Series{{
			Name: "History for Sleep",
			Themes: []*model.Theme{{
				Name:   "Ancient Rome",
				Topics: []*model.Topic{{Name: "Fall of Rome", ExampleTitle: "The Fall of Rome Explained"}},
			}},
		}},
	}
	require.NoError(t, s.SaveProject(ctx, project))

	loaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Name, loaded.Name)
	require.NotNil(t, loaded.Taxonomy)
	assert.Equal(t, "Ancient Rome", loaded.Taxonomy.Series[0].Themes[0].Name)

	// Saving again overwrites rather than duplicating.
	loaded.Status = model.ProjectStatusFinalized
	require.NoError(t, s.SaveProject(ctx, loaded))
	again, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusFinalized, again.Status)
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestListProjectsVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := newTestProject("user-1")
	require.NoError(t, s.SaveProject(ctx, mine))

	shared := newTestProject("user-2")
	shared.AllowedUsers = []string{"user-1"}
	require.NoError(t, s.SaveProject(ctx, shared))

	hidden := newTestProject("user-3")
	require.NoError(t, s.SaveProject(ctx, hidden))

	visible, err := s.ListProjects(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestDeleteProjectCascadesJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := newTestProject("user-1")
	require.NoError(t, s.SaveProject(ctx, project))

	job := &model.Job{
		ID:        uuid.NewString(),
		Kind:      model.JobKindCreateProject,
		UserID:    "user-1",
		ProjectID: project.ID,
		State:     model.JobStateRunning,
	}
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.DeleteProject(ctx, project.ID))

	_, err := s.GetProject(ctx, project.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	_, err = s.GetJob(ctx, job.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.Job{
		ID:     uuid.NewString(),
		Kind:   model.JobKindGenerateScript,
		UserID: "user-1",
		State:  model.JobStateRunning,
	}
	require.NoError(t, s.CreateJob(ctx, job))

	job.Progress = 40
	job.Step = "generating segment 2 of 5"
	job.ErrorLog = append(job.ErrorLog, "segment 1 fell back to placeholder")
	require.NoError(t, s.UpdateJob(ctx, job))

	loaded, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateRunning, loaded.State)
	assert.Equal(t, 40, loaded.Progress)
	require.Len(t, loaded.ErrorLog, 1)
}

func TestSecretUpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	secret := &model.UserSecret{UserID: "user-1", Service: model.ServiceLLM, Key: "first"}
	require.NoError(t, s.UpsertSecret(ctx, secret))

	secret.Key = "rotated"
	require.NoError(t, s.UpsertSecret(ctx, secret))

	loaded, err := s.GetSecret(ctx, "user-1", model.ServiceLLM)
	require.NoError(t, err)
	assert.Equal(t, "rotated", loaded.Key)

	all, err := s.ListSecrets(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteSecret(ctx, "user-1", model.ServiceLLM))
	err = s.DeleteSecret(ctx, "user-1", model.ServiceLLM)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestWithProjectLockSerializesWriters(t *testing.T) {
	s := newTestStore(t)

	var inside int
	var maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithProjectLock("proj", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}
