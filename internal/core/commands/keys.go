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

// Package commands holds the atomic pipeline steps that workflow chains are
// assembled from. Each command reads its primary input from the chain's
// piped slot (or a named key), does one unit of work, and writes its output
// back for the next command. The project aggregate flows through every
// chain; commands mutate it in memory and the trailing persist command
// writes it under the project lock.
package commands

import (
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Context keys for secondary command parameters. The primary value (the
// project) rides the chain's CtxIn/CtxOut piping.
const (
	KeyProjectID        = "project_id"
	KeyProjectName      = "project_name"
	KeyOwnerID          = "owner_id"
	KeySelectedChannels = "selected_channel_ids"
	KeySeries           = "series_name"
	KeyTheme            = "theme_name"
	KeyTitle            = "video_title"
	KeyDurationMin      = "duration_min"
	KeyHostName         = "host_name"
	KeySponsorName      = "sponsor_name"
	KeyConcepts         = "thumbnail_concepts"
	KeyCostReport       = "cost_report"
	KeyGroupMetrics     = "group_metrics"
)

// projectFrom reads the chain's piped project.
func projectFrom(c cor.Context, key string) *model.Project {
	project, _ := c.Get(key).(*model.Project)
	return project
}

// stringFrom reads a string parameter, or "".
func stringFrom(c cor.Context, key string) string {
	s, _ := c.Get(key).(string)
	return s
}

// intFrom reads an int parameter, or 0.
func intFrom(c cor.Context, key string) int {
	n, _ := c.Get(key).(int)
	return n
}
