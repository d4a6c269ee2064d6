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

// Package workflow defines the high-level business logic orchestrations,
// combining the pipeline commands into coherent chains, one per background
// job kind. Workflows are built per job run because the search and model
// clients they wrap carry the requesting user's credentials.
package workflow

import (
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/metrics"
	"github.com/creatorscope/channelintel/internal/core/script"
	"github.com/creatorscope/channelintel/internal/core/search"
	"github.com/creatorscope/channelintel/internal/core/store"
	"github.com/creatorscope/channelintel/internal/core/taxonomy"
	"github.com/creatorscope/channelintel/internal/core/thumbnail"
)

// Deps carries the user-scoped pipeline components the workflows are
// assembled from. Exporter and the thumbnail components may be nil when the
// corresponding backend is not configured; the workflows that need them
// must not be constructed in that case.
type Deps struct {
	Store       *store.Store
	Search      search.Service
	Extractor   *taxonomy.Extractor
	Discoverer  *discovery.Discoverer
	Matcher     *discovery.SharedSeriesMatcher
	Exporter    *metrics.ThemeExporter
	Breakdowner *script.Breakdowner
	Outliner    *script.Outliner
	ScriptGen   *script.Generator

	ThumbnailAnalyzer *thumbnail.Analyzer
	ThumbnailTrainer  *thumbnail.Trainer
	ThumbnailRenderer *thumbnail.Renderer
}
