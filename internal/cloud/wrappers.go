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
// This file wraps the raw Generative AI model handle with a rate limiter
// (Decorator pattern). Vertex AI enforces per-minute quotas; funnelling every
// call through the limiter keeps the pipeline inside them. Retries, backoff,
// and error classification live one level up in the llm package — the
// wrapper's single job is pacing.
package cloud

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the narrow surface the llm package depends on. Tests
// substitute a fake; production uses *QuotaAwareGenerativeAIModel.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel decorates a configured model with request
// pacing. The generation config (system instructions, temperature, response
// MIME type) travels with the wrapper so every call site uses the same
// settings for a given agent role.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel wraps a model handle and its generation config with a
// token-bucket limiter allowing a burst of requestsPerSecond and refilling at
// one token per second.
//
// Inputs:
//   - wrapped: the generation config to apply on every call.
//   - name: the fully qualified model name (e.g. "gemini-2.0-flash").
//   - modelHandle: the genai Models handle performing the calls.
//   - requestsPerSecond: the pacing bound for this agent role.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: the configured wrapper.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/1), requestsPerSecond),
	}
}

// GenerateContent blocks until the limiter admits the request, then performs
// a single generation call. Cancellation of ctx aborts both the wait and the
// call; the caller owns retry policy.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}
