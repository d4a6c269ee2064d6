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

// This file implements the project and job handlers. Mutating operations
// enqueue a background job and return 202 with the job id; reads recompute
// derived metrics on the fly since they are never persisted.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creatorscope/channelintel/internal/core/commands"
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/metrics"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/thumbnail"
	"github.com/creatorscope/channelintel/internal/core/workflow"
)

// startJob enqueues a workflow as a background job and answers 202 with the
// job id. The workflow is constructed inside the runner because its clients
// carry the user's credential snapshot, which only exists once the job
// starts.
func (s *Server) startJob(c *gin.Context, kind model.JobKind, projectID string, build func(*workflow.Deps) cor.Executable, input any, params map[string]any) {
	runner := func(ctx context.Context, exec *jobs.Execution) (string, error) {
		deps, err := s.buildDeps(ctx, exec.User)
		if err != nil {
			return "", err
		}
		chainCtx, err := workflow.Run(ctx, build(deps), input, params, exec.Progress)
		if err != nil {
			return "", err
		}
		return workflow.ProjectResultRef(chainCtx), nil
	}

	job, err := s.orchestrator.Start(c.Request.Context(), kind, userID(c), projectID, runner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "project_id": projectID})
}

// loadOwnedProject reads a project and enforces access. Unknown and foreign
// projects are indistinguishable to the caller.
func (s *Server) loadOwnedProject(c *gin.Context) (*model.Project, bool) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	uid := userID(c)
	allowed := project.OwnerID == uid
	for _, u := range project.AllowedUsers {
		allowed = allowed || u == uid
	}
	if !allowed {
		writeError(c, errs.New(errs.KindNotFound, "project %s not found", project.ID))
		return nil, false
	}
	return project, true
}

func (s *Server) createProject(c *gin.Context) {
	var req struct {
		Name           string `json:"name" binding:"required"`
		SeedChannelURL string `json:"seed_channel_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}

	// The project id is allocated here so the response can carry it while
	// the creation job is still running.
	projectID := uuid.NewString()
	s.startJob(c, model.JobKindCreateProject, projectID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewCreateProjectWorkflow(deps) },
		req.SeedChannelURL,
		map[string]any{
			commands.KeyProjectID:   projectID,
			commands.KeyProjectName: req.Name,
			commands.KeyOwnerID:     userID(c),
		})
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) getProject(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	// Group metrics, theme scores, and revenue estimates are derived state,
	// recomputed on read. The niche label scales the revenue RPM and is the
	// caller's to choose.
	niche := c.Query("niche")
	estimates := make(map[string]float64, len(project.Competitors))
	for _, competitor := range project.Competitors {
		estimates[competitor.ChannelID] = metrics.EstimateMonthlyRevenue(
			competitor.MonthlyViews, competitor.AvgVideoDuration, niche)
	}
	c.JSON(http.StatusOK, gin.H{
		"project":           project,
		"group_metrics":     metrics.GroupMetrics(project),
		"theme_outliers":    metrics.ScoreThemes(project.Taxonomy),
		"revenue_estimates": estimates,
	})
}

func (s *Server) deleteProject(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	if err := s.store.DeleteProject(c.Request.Context(), project.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) potentialCompetitors(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"potential_competitors": project.PotentialCompetitors})
}

func (s *Server) discoverChannels(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	s.startJob(c, model.JobKindDiscoverChannels, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewDiscoverChannelsWorkflow(deps) },
		project.ID, nil)
}

func (s *Server) finalizeCompetitors(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	var req struct {
		SelectedChannelIDs []string `json:"selected_channel_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}
	s.startJob(c, model.JobKindFinalizeCompetitors, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewFinalizeCompetitorsWorkflow(deps) },
		project.ID,
		map[string]any{commands.KeySelectedChannels: req.SelectedChannelIDs})
}

func (s *Server) analyzeCompetitors(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	s.startJob(c, model.JobKindAnalyzeCompetitors, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewAnalyzeCompetitorsWorkflow(deps) },
		project.ID, nil)
}

// scriptRequest is shared by the plot and script endpoints.
type scriptRequest struct {
	Series      string `json:"series" binding:"required"`
	Theme       string `json:"theme" binding:"required"`
	Title       string `json:"title" binding:"required"`
	DurationMin int    `json:"duration_min" binding:"required"`
	HostName    string `json:"host_name"`
	SponsorName string `json:"sponsor_name"`
}

func (r *scriptRequest) params() map[string]any {
	return map[string]any{
		commands.KeySeries:      r.Series,
		commands.KeyTheme:       r.Theme,
		commands.KeyTitle:       r.Title,
		commands.KeyDurationMin: r.DurationMin,
		commands.KeyHostName:    r.HostName,
		commands.KeySponsorName: r.SponsorName,
	}
}

// prepareResources builds (or confirms) the script breakdown for a series
// and theme without generating an outline or script. The preparation step is
// idempotent, so running it ahead of time just makes the later generation
// jobs faster.
func (s *Server) prepareResources(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	var req struct {
		Series string `json:"series" binding:"required"`
		Theme  string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}
	s.startJob(c, model.JobKindPrepareResources, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewPrepareResourcesWorkflow(deps) },
		project.ID,
		map[string]any{
			commands.KeySeries: req.Series,
			commands.KeyTheme:  req.Theme,
		})
}

func (s *Server) generatePlot(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	var req scriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}
	s.startJob(c, model.JobKindGeneratePlot, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewGeneratePlotWorkflow(deps) },
		project.ID, req.params())
}

func (s *Server) generateScript(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	var req scriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}
	s.startJob(c, model.JobKindGenerateScript, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewGenerateScriptWorkflow(deps) },
		project.ID, req.params())
}

func (s *Server) generateThumbnails(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	if s.ImageBackend == nil || s.TrainingBackend == nil {
		writeError(c, errs.Validation("no image model backend is configured"))
		return
	}
	var req struct {
		Concepts []string `json:"concepts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Wrap(err, errs.KindValidation, "invalid request body"))
		return
	}
	s.startJob(c, model.JobKindGenerateThumbnails, project.ID,
		func(deps *workflow.Deps) cor.Executable { return workflow.NewGenerateThumbnailsWorkflow(deps) },
		project.ID,
		map[string]any{commands.KeyConcepts: req.Concepts})
}

// listThumbnails returns short-lived signed URLs for the project's rendered
// thumbnails. Raw bucket paths never leave the service.
func (s *Server) listThumbnails(c *gin.Context) {
	project, ok := s.loadOwnedProject(c)
	if !ok {
		return
	}
	if project.Thumbnails == nil || len(project.Thumbnails.RenderedURLs) == 0 {
		c.JSON(http.StatusOK, gin.H{"thumbnails": []gin.H{}})
		return
	}
	if s.clients == nil || s.clients.StorageClient == nil {
		writeError(c, errs.New(errs.KindInternal, "object storage is not configured"))
		return
	}

	assets := thumbnail.NewAssetStore(
		s.clients.StorageClient,
		s.clients.IAMClient,
		s.config.Storage.ThumbnailBucket,
		s.config.Application.SignerServiceAccountEmail,
	)
	out := make([]gin.H, 0, len(project.Thumbnails.RenderedURLs))
	for _, objectPath := range project.Thumbnails.RenderedURLs {
		url, err := assets.SignedURL(c.Request.Context(), objectPath)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, gin.H{"object": objectPath, "url": url})
	}
	c.JSON(http.StatusOK, gin.H{"thumbnails": out})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.UserID != userID(c) {
		writeError(c, errs.New(errs.KindNotFound, "job %s not found", job.ID))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.UserID != userID(c) {
		writeError(c, errs.New(errs.KindNotFound, "job %s not found", job.ID))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": s.orchestrator.Cancel(job.ID)})
}
