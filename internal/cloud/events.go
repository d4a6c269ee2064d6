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

// Package cloud defines the application configuration and service clients.
// This file implements the job lifecycle event publisher. When a background
// job reaches a terminal state the orchestrator emits a small JSON event to a
// Pub/Sub topic so external consumers (dashboards, notification fan-outs)
// can react without polling the jobs API. Publishing is strictly
// best-effort: a publish failure is logged and never fails the job.
package cloud

import (
	"context"
	"encoding/json"
	"log/slog"

	"cloud.google.com/go/pubsub"
)

// JobEvent is the payload published on job state transitions.
type JobEvent struct {
	JobID     string `json:"job_id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	ProjectID string `json:"project_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// JobEventPublisher publishes job lifecycle events. A nil publisher (or one
// constructed with an empty topic name) is valid and drops all events, which
// keeps the orchestrator free of conditionals.
type JobEventPublisher struct {
	topic *pubsub.Topic
}

// NewJobEventPublisher creates a publisher for the named topic. An empty
// topic name disables publishing.
func NewJobEventPublisher(client *pubsub.Client, topicName string) *JobEventPublisher {
	if client == nil || topicName == "" {
		return &JobEventPublisher{}
	}
	return &JobEventPublisher{topic: client.Topic(topicName)}
}

// Publish emits one event, logging and swallowing any failure. The returned
// publish result is not awaited beyond the client's internal batching; job
// latency must never depend on the event bus.
func (p *JobEventPublisher) Publish(ctx context.Context, event JobEvent) {
	if p == nil || p.topic == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode job event", "error", err)
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	go func() {
		if _, err := result.Get(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to publish job event", "job_id", event.JobID, "error", err)
		}
	}()
}
