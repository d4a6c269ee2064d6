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

// Package api exposes the HTTP surface: project lifecycle, background job
// polling, content generation, and per-user secret management. Handlers are
// thin; anything slower than a database read runs as a background job and
// the handler returns the job id for polling.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/metrics"
	"github.com/creatorscope/channelintel/internal/core/script"
	"github.com/creatorscope/channelintel/internal/core/search"
	"github.com/creatorscope/channelintel/internal/core/store"
	"github.com/creatorscope/channelintel/internal/core/taxonomy"
	"github.com/creatorscope/channelintel/internal/core/thumbnail"
	"github.com/creatorscope/channelintel/internal/core/workflow"
)

// UserIDHeader carries the caller identity. The service sits behind an
// authenticating proxy; an absent header maps to the local operator user.
const (
	UserIDHeader  = "X-User-ID"
	defaultUserID = "local"
)

// Server wires the HTTP handlers to the repository, the job orchestrator,
// and the per-user workflow dependency builder.
type Server struct {
	config       *cloud.Config
	clients      *cloud.ServiceClients
	store        *store.Store
	orchestrator *jobs.Orchestrator
	llmGate      *semaphore.Weighted

	// Image generation backends are deployment-specific adapters; nil means
	// the thumbnail endpoints report the feature as unconfigured.
	ImageBackend    thumbnail.ImageBackend
	TrainingBackend thumbnail.TrainingBackend

	// buildDeps constructs the user-scoped workflow dependencies. Swappable
	// in tests.
	buildDeps func(ctx context.Context, user *jobs.UserContext) (*workflow.Deps, error)
}

// NewServer creates the API server.
//
// Inputs:
//   - config: the loaded application configuration.
//   - clients: the shared cloud service clients.
//   - repository: the project/job/secret repository.
//   - orchestrator: the background job orchestrator.
//
// Outputs:
//   - *Server: the server, ready for RegisterRoutes.
func NewServer(config *cloud.Config, clients *cloud.ServiceClients, repository *store.Store, orchestrator *jobs.Orchestrator) *Server {
	s := &Server{
		config:       config,
		clients:      clients,
		store:        repository,
		orchestrator: orchestrator,
		llmGate:      llm.NewSharedGate(config.Application.LLMWorkerSlots),
	}
	s.buildDeps = s.defaultDeps
	return s
}

// RegisterRoutes attaches all handlers under the given group.
func (s *Server) RegisterRoutes(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.POST("", s.createProject)
		projects.GET("", s.listProjects)
		projects.GET("/:id", s.getProject)
		projects.DELETE("/:id", s.deleteProject)
		projects.GET("/:id/potential_competitors", s.potentialCompetitors)
		projects.POST("/:id/discover", s.discoverChannels)
		projects.POST("/:id/finalize", s.finalizeCompetitors)
		projects.POST("/:id/analyze", s.analyzeCompetitors)
		projects.POST("/:id/prepare", s.prepareResources)
		projects.POST("/:id/scripts", s.generateScript)
		projects.POST("/:id/plots", s.generatePlot)
		projects.POST("/:id/thumbnails", s.generateThumbnails)
		projects.GET("/:id/thumbnails", s.listThumbnails)
	}

	jobsGroup := r.Group("/jobs")
	{
		jobsGroup.GET("/:id", s.getJob)
		jobsGroup.POST("/:id/cancel", s.cancelJob)
	}

	secrets := r.Group("/secrets")
	{
		secrets.GET("", s.listSecrets)
		secrets.POST("", s.upsertSecret)
		secrets.DELETE("/:service", s.deleteSecret)
		secrets.POST("/:service/test", s.testSecret)
	}
}

// userID extracts the caller identity from the request.
func userID(c *gin.Context) string {
	if id := c.GetHeader(UserIDHeader); id != "" {
		return id
	}
	return defaultUserID
}

// writeError maps a pipeline error kind onto an HTTP status and a stable
// JSON error shape.
func writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case errs.KindMissingSecret:
		status = http.StatusPreconditionFailed
	case errs.KindUpstreamTransient, errs.KindParse:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

// defaultDeps builds the user-scoped workflow components: a search client
// carrying the user's key pool and model clients for each agent role.
func (s *Server) defaultDeps(ctx context.Context, user *jobs.UserContext) (*workflow.Deps, error) {
	searchCfg := s.config.Search
	if keys := user.SearchKeys(); len(keys) > 0 {
		searchCfg.APIKeys = keys
	}
	searchClient, err := search.NewClient(ctx, searchCfg, nil)
	if err != nil {
		return nil, err
	}

	classifier, err := s.agent("classifier")
	if err != nil {
		return nil, err
	}
	matcherClient, err := s.agent("shared_series")
	if err != nil {
		matcherClient = classifier
	}
	breakdownClient, err := s.agent("breakdown")
	if err != nil {
		return nil, err
	}
	outlineClient, err := s.agent("outline")
	if err != nil {
		return nil, err
	}
	scriptClient, err := s.agent("script")
	if err != nil {
		return nil, err
	}

	deps := &workflow.Deps{
		Store:       s.store,
		Search:      searchClient,
		Extractor:   taxonomy.NewExtractor(classifier),
		Discoverer:  discovery.NewDiscoverer(searchClient, s.config.Application.DiscoveryWorkerSlots),
		Matcher:     discovery.NewSharedSeriesMatcher(matcherClient),
		Breakdowner: script.NewBreakdowner(breakdownClient),
		Outliner:    script.NewOutliner(outlineClient),
		ScriptGen:   script.NewGenerator(scriptClient),
	}

	if s.config.BigQueryDataSource.DatasetName != "" && s.clients != nil && s.clients.BigQueryClient != nil {
		deps.Exporter = metrics.NewThemeExporter(
			s.clients.BigQueryClient,
			s.config.BigQueryDataSource.DatasetName,
			s.config.BigQueryDataSource.ThemePerformanceTable,
		)
	}

	if s.ImageBackend != nil && s.TrainingBackend != nil {
		vision, err := s.agent("vision")
		if err != nil {
			return nil, err
		}
		refs := thumbnail.NewGCSReferenceStore(s.clients.StorageClient, s.config.Storage.ReferenceBucket)
		assets := thumbnail.NewAssetStore(
			s.clients.StorageClient,
			s.clients.IAMClient,
			s.config.Storage.ThumbnailBucket,
			s.config.Application.SignerServiceAccountEmail,
		)
		imageSettings := s.config.ImageModels["thumbnail"]
		deps.ThumbnailAnalyzer = thumbnail.NewAnalyzer(vision, refs)
		deps.ThumbnailTrainer = thumbnail.NewTrainer(s.TrainingBackend, refs, imageSettings)
		deps.ThumbnailRenderer = thumbnail.NewRenderer(s.ImageBackend, assets, imageSettings)
	}
	return deps, nil
}

// agent builds an llm client for a configured agent role.
func (s *Server) agent(role string) (*llm.Client, error) {
	settings, ok := s.config.AgentModels[role]
	if !ok {
		return nil, errs.New(errs.KindInternal, "agent model %q is not configured", role)
	}
	generator, ok := s.clients.AgentModels[role]
	if !ok {
		return nil, errs.New(errs.KindInternal, "agent model %q has no initialized client", role)
	}
	return llm.NewClient(role, generator, settings, s.llmGate), nil
}
