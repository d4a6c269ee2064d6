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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/store"
	"github.com/creatorscope/channelintel/internal/core/taxonomy"
	"github.com/creatorscope/channelintel/internal/core/workflow"
)

// fakeSearch serves canned channel data for the create-project flow.
type fakeSearch struct {
	channelIDs map[string]string
	channels   map[string]*model.ChannelStats
	videos     map[string][]*model.Video
}

func (f *fakeSearch) ResolveChannel(_ context.Context, channelURL string) (string, error) {
	id, ok := f.channelIDs[channelURL]
	if !ok {
		return "", errs.New(errs.KindNotFound, "no channel for %q", channelURL)
	}
	return id, nil
}

func (f *fakeSearch) FetchChannel(_ context.Context, channelID string) (*model.ChannelStats, error) {
	return f.channels[channelID], nil
}

func (f *fakeSearch) ListChannelVideos(_ context.Context, channelID string, _ int) ([]*model.Video, error) {
	return f.videos[channelID], nil
}

func (f *fakeSearch) Search(_ context.Context, _ string, _ int) ([]*model.SearchResult, error) {
	return nil, nil
}

func (f *fakeSearch) GetVideo(_ context.Context, _ string) (*model.Video, error) {
	return nil, errs.New(errs.KindNotFound, "not stubbed")
}

func (f *fakeSearch) GetTranscript(_ context.Context, _ string) (*model.Transcript, error) {
	return nil, errs.New(errs.KindNotFound, "not stubbed")
}

// fakeJSON unmarshals one canned reply into every GenerateJSON call.
type fakeJSON struct {
	reply string
}

func (f *fakeJSON) GenerateJSON(_ context.Context, _ llm.Request, out any) (*llm.Response, error) {
	if err := json.Unmarshal([]byte(f.reply), out); err != nil {
		return nil, err
	}
	return &llm.Response{Text: f.reply}, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(cloud.Database{DSN: ":memory:"})
	require.NoError(t, err)
	repository := store.NewStore(db)

	config := cloud.NewConfig()
	config.Application.LLMWorkerSlots = 2
	config.Application.JobWorkerSlots = 2

	orchestrator := jobs.NewOrchestrator(context.Background(), repository, nil, 2)
	server := NewServer(config, nil, repository, orchestrator)

	router := gin.New()
	server.RegisterRoutes(router.Group("/api/v1"))
	return server, repository, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

// waitForJob polls until the job leaves the running state.
func waitForJob(t *testing.T, repository *store.Store, jobID string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repository.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.State != model.JobStateRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

func fakeDeps(t *testing.T, repository *store.Store) *workflow.Deps {
	t.Helper()
	taxonomyReply, err := json.Marshal(&model.TaxonomyWire{Series: []*model.SeriesWire{{
		Name: "Heists",
		Themes: []*model.ThemeWire{{
			Name:   "Bank Jobs",
			Topics: []*model.TopicWire{{Name: "Vault Heist", Example: "Inside the Vault Heist"}},
		}},
	}}})
	require.NoError(t, err)

	return &workflow.Deps{
		Store: repository,
		Search: &fakeSearch{
			channelIDs: map[string]string{"https://youtube.com/@vaultstories": "UCseedseedseedseedseed00"},
			channels: map[string]*model.ChannelStats{
				"UCseedseedseedseedseed00": {ChannelID: "UCseedseedseedseedseed00", Title: "Vault Stories"},
			},
			videos: map[string][]*model.Video{
				"UCseedseedseedseedseed00": {{VideoID: "vid-1", Title: "Inside the Vault Heist", Views: 50000}},
			},
		},
		Extractor: taxonomy.NewExtractor(&fakeJSON{reply: string(taxonomyReply)}),
	}
}

func TestCreateProjectRunsBackgroundJob(t *testing.T) {
	server, repository, router := newTestServer(t)
	server.buildDeps = func(_ context.Context, _ *jobs.UserContext) (*workflow.Deps, error) {
		return fakeDeps(t, repository), nil
	}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/projects", "api-user-1", gin.H{
		"name":             "Vault Stories Intel",
		"seed_channel_url": "https://youtube.com/@vaultstories",
	})
	require.Equal(t, http.StatusAccepted, resp.Code)

	var accepted struct {
		JobID     string `json:"job_id"`
		ProjectID string `json:"project_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.JobID)
	require.NotEmpty(t, accepted.ProjectID)

	job := waitForJob(t, repository, accepted.JobID)
	require.Equal(t, model.JobStateComplete, job.State)
	assert.Equal(t, "projects/"+accepted.ProjectID, job.ResultRef)
	assert.Equal(t, 100, job.Progress)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/projects/"+accepted.ProjectID, "api-user-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Project *model.Project `json:"project"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Vault Stories Intel", body.Project.Name)
	assert.Equal(t, "Heists", body.Project.Taxonomy.Series[0].Name)
}

func TestCreateProjectValidatesBody(t *testing.T) {
	_, _, router := newTestServer(t)
	resp := doJSON(t, router, http.MethodPost, "/api/v1/projects", "api-user-2", gin.H{"name": "No Seed"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetProjectHidesForeignProjects(t *testing.T) {
	_, repository, router := newTestServer(t)
	project := &model.Project{ID: "api-foreign-1", Name: "Private", OwnerID: "alice-1"}
	require.NoError(t, repository.SaveProject(context.Background(), project))

	resp := doJSON(t, router, http.MethodGet, "/api/v1/projects/api-foreign-1", "bob-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/projects/api-foreign-1", "alice-1", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetProjectReturnsRevenueEstimates(t *testing.T) {
	_, repository, router := newTestServer(t)
	project := &model.Project{
		ID:      "api-revenue-1",
		Name:    "Revenue",
		OwnerID: "henry-1",
		Competitors: []*model.CompetitorChannel{
			{ChannelID: "UCrevenue000000000000001", MonthlyViews: 600_000, AvgVideoDuration: 1800},
		},
	}
	require.NoError(t, repository.SaveProject(context.Background(), project))

	resp := doJSON(t, router, http.MethodGet, "/api/v1/projects/api-revenue-1?niche=finance", "henry-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		RevenueEstimates map[string]float64 `json:"revenue_estimates"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	// 30 minute average sits in the 20-45 bucket (5.0 RPM), finance scales it
	// by 3.0: 600k views / 1000 * 15 = 9000.
	assert.InDelta(t, 9000.0, body.RevenueEstimates["UCrevenue000000000000001"], 0.01)
}

func TestGenerateThumbnailsReportsUnconfiguredBackend(t *testing.T) {
	_, repository, router := newTestServer(t)
	project := &model.Project{ID: "api-thumbs-1", Name: "Thumbs", OwnerID: "carol-1"}
	require.NoError(t, repository.SaveProject(context.Background(), project))

	resp := doJSON(t, router, http.MethodPost, "/api/v1/projects/api-thumbs-1/thumbnails", "carol-1", gin.H{
		"concepts": []string{"vault door at night"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "image model backend")
}

func TestJobVisibilityIsScopedToUser(t *testing.T) {
	server, repository, router := newTestServer(t)
	server.buildDeps = func(_ context.Context, _ *jobs.UserContext) (*workflow.Deps, error) {
		return fakeDeps(t, repository), nil
	}

	resp := doJSON(t, router, http.MethodPost, "/api/v1/projects", "dave-1", gin.H{
		"name":             "Scoped",
		"seed_channel_url": "https://youtube.com/@vaultstories",
	})
	require.Equal(t, http.StatusAccepted, resp.Code)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &accepted))
	waitForJob(t, repository, accepted.JobID)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "eve-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "dave-1", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSecretsRoundTrip(t *testing.T) {
	_, _, router := newTestServer(t)
	const user = "frank-1"
	const key = "AIzaSyFakeSearchKey12345"

	resp := doJSON(t, router, http.MethodPost, "/api/v1/secrets", user, gin.H{
		"service": model.ServiceSearch,
		"key":     key,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), key)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/secrets", user, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var listed struct {
		Secrets []struct {
			Service string `json:"service"`
			Key     string `json:"key"`
		} `json:"secrets"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Len(t, listed.Secrets, 1)
	assert.Equal(t, model.ServiceSearch, listed.Secrets[0].Service)
	assert.NotEqual(t, key, listed.Secrets[0].Key)

	resp = doJSON(t, router, http.MethodDelete, "/api/v1/secrets/"+model.ServiceSearch, user, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/secrets", user, gin.H{
		"service": "unknown",
		"key":     "whatever",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTestSecretRequiresStoredKey(t *testing.T) {
	_, _, router := newTestServer(t)
	resp := doJSON(t, router, http.MethodPost, "/api/v1/secrets/voice/test", "grace-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
