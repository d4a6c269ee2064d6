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

// This file defines the command that turns a seed channel reference into a
// fresh project aggregate.
//
// Logic Flow:
//  1. It receives the seed channel URL (or handle, or bare channel id) from
//     the context.
//  2. It resolves the reference to a canonical channel id, fetches the
//     channel's public statistics, and lists its most recent uploads.
//  3. It assembles a new Project in state "initial" and places it into the
//     context for the taxonomy extractor.
package commands

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/search"
)

// SeedVideoSample is how many recent uploads of the seed channel feed the
// taxonomy extraction.
const SeedVideoSample = 50

// SeedChannelResolver resolves the seed channel and creates the project.
type SeedChannelResolver struct {
	cor.BaseCommand
	search search.Service
}

// NewSeedChannelResolver is the constructor for the SeedChannelResolver
// command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - searchClient: The YouTube data client used for resolution and listing.
//
// Outputs:
//   - *SeedChannelResolver: A pointer to the newly instantiated command.
func NewSeedChannelResolver(name string, searchClient search.Service) *SeedChannelResolver {
	return &SeedChannelResolver{
		BaseCommand: *cor.NewBaseCommand(name),
		search:      searchClient,
	}
}

// Execute resolves the seed reference and builds the project aggregate.
func (t *SeedChannelResolver) Execute(context cor.Context) {
	ctx := context.GetContext()
	seedURL, _ := context.Get(t.GetInputParam()).(string)
	name := stringFrom(context, KeyProjectName)
	ownerID := stringFrom(context, KeyOwnerID)
	if seedURL == "" || name == "" || ownerID == "" {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), errs.Validation("a project needs a name, an owner, and a seed channel url"))
		return
	}

	context.ReportProgress(10, "resolving seed channel")
	channelID, err := t.search.ResolveChannel(ctx, seedURL)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	stats, err := t.search.FetchChannel(ctx, channelID)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	context.ReportProgress(25, "listing recent uploads")
	videos, err := t.search.ListChannelVideos(ctx, channelID, SeedVideoSample)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		context.AddError(t.GetName(), err)
		return
	}

	// The API allocates the project id before enqueueing the job so the
	// response can reference it; direct callers leave it blank.
	projectID := stringFrom(context, KeyProjectID)
	if projectID == "" {
		projectID = uuid.NewString()
	}

	now := time.Now().UTC()
	project := &model.Project{
		ID:          projectID,
		Name:        name,
		OwnerID:     ownerID,
		SeedChannel: *stats,
		SeedVideos:  videos,
		Status:      model.ProjectStatusInitial,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.GetSuccessCounter().Add(ctx, 1)
	context.Add(t.GetOutputParam(), project)
}
