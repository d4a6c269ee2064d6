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

// Package llm provides the typed client every pipeline stage uses to talk to
// the generative model. It layers policy on top of the rate-limited transport
// wrapper in the cloud package:
//
//  1. A bounded-concurrency gate (weighted semaphore) so the whole process
//     never holds more than a fixed number of in-flight model calls.
//  2. Transient-failure retries with exponential backoff and jitter.
//  3. Refusal detection: safety-blocked responses surface as a typed error
//     that callers must never retry blindly.
//  4. Structured-output parsing with local JSON repair and one full retry
//     before a ParseError is surfaced with the raw payload attached.
//  5. Token accounting and dollar-cost computation from the per-model rates
//     in the agent configuration, including the cached-input discount.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/model"
)

// Defaults applied when the agent configuration leaves a field zero.
const (
	DefaultMaxAttempts      = 5
	DefaultTimeoutSeconds   = 120
	DefaultWorkerSlots      = 5
	DefaultInputCostPerMTok = 3.0
	DefaultOutputCostPerMTok = 15.0
	DefaultCacheReadDiscount = 0.9

	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
)

// Part is one piece of a user message. Ephemeral marks a static prefix that
// should be served from the prompt cache on repeat calls. A part with
// ImageData set is sent as inline media instead of text.
type Part struct {
	Text      string
	Ephemeral bool
	ImageData []byte
	MIMEType  string
}

// Request is a single model invocation. Parts are concatenated in order into
// one user turn; the system message travels with the agent configuration.
type Request struct {
	Parts []Part
}

// NewTextRequest builds a request from one plain text body.
func NewTextRequest(text string) Request {
	return Request{Parts: []Part{{Text: text}}}
}

// Response carries the model output and its accounting.
type Response struct {
	Text       string
	StopReason string
	Usage      model.TokenUsage
	Cost       float64
}

// Client is the typed model client for one agent role. Construct one per
// role via NewClient and share it; all methods are safe for concurrent use.
type Client struct {
	name        string
	generator   cloud.ContentGenerator
	settings    cloud.AgentModel
	gate        *semaphore.Weighted
	promptCache *promptCache
	sleep       func(context.Context, time.Duration) error
}

// NewClient creates a client for one agent role.
//
// Inputs:
//   - name: the agent role name, used in logs and error messages.
//   - generator: the rate-limited transport for this role.
//   - settings: the role's model configuration (timeouts, retry budget,
//     cost rates, prompt cache capacity).
//   - gate: the process-wide in-flight call semaphore, shared across roles.
//     Pass nil to have the client create a private gate with the default
//     number of slots.
func NewClient(name string, generator cloud.ContentGenerator, settings cloud.AgentModel, gate *semaphore.Weighted) *Client {
	if gate == nil {
		gate = semaphore.NewWeighted(DefaultWorkerSlots)
	}
	capacity := settings.PromptCacheCapacity
	if capacity <= 0 {
		capacity = defaultPromptCacheCapacity
	}
	return &Client{
		name:        name,
		generator:   generator,
		settings:    settings,
		gate:        gate,
		promptCache: newPromptCache(capacity),
		sleep:       sleepContext,
	}
}

// NewSharedGate builds the process-wide LLM concurrency gate.
func NewSharedGate(slots int) *semaphore.Weighted {
	if slots <= 0 {
		slots = DefaultWorkerSlots
	}
	return semaphore.NewWeighted(int64(slots))
}

// GenerateText performs one free-form call: acquire the gate, wait out the
// rate limiter, call the model, and retry transient failures with backoff.
// Refusals and cancellation are returned immediately without retrying.
//
// Inputs:
//   - ctx: the caller's context; governs the gate wait and every attempt.
//   - req: the user message parts.
//
// Outputs:
//   - *Response: text, stop reason, token usage, and computed cost.
//   - error: a typed error from the errs package on failure.
func (c *Client) GenerateText(ctx context.Context, req Request) (*Response, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, errs.Wrap(err, errs.KindCancelled, "llm call cancelled while queued")
	}
	defer c.gate.Release(1)

	maxAttempts := c.settings.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.generateOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		kind := errs.KindOf(err)
		if kind == errs.KindUpstreamRefusal || kind == errs.KindCancelled || kind == errs.KindValidation {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		slog.Warn("transient model failure, backing off",
			"agent", c.name, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, errs.Wrap(err, errs.KindCancelled, "llm retry cancelled")
		}
	}
	return nil, errs.Wrap(lastErr, errs.KindUpstreamTransient,
		"model %q failed after %d attempts", c.name, maxAttempts)
}

// GenerateJSON performs a structured call and decodes the response into out.
// A malformed payload gets one local repair pass (strip fences, extract the
// first balanced object) and, if that also fails, one full regeneration
// before a ParseError carrying the raw payload is returned.
func (c *Client) GenerateJSON(ctx context.Context, req Request, out any) (*Response, error) {
	var lastResp *Response
	for call := 0; call < 2; call++ {
		resp, err := c.GenerateText(ctx, req)
		if err != nil {
			return nil, err
		}
		lastResp = resp

		if err := decodeStructured(resp.Text, out); err == nil {
			return resp, nil
		} else if call == 0 {
			slog.Warn("structured response did not parse, regenerating", "agent", c.name, "error", err)
		}
	}
	parseErr := errs.New(errs.KindParse, "model %q returned unparseable JSON", c.name)
	parseErr.Payload = lastResp.Text
	return lastResp, parseErr
}

// generateOnce performs a single attempt with the per-call deadline applied.
func (c *Client) generateOnce(ctx context.Context, req Request) (*Response, error) {
	timeout := time.Duration(c.settings.TimeoutInSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := make([]*genai.Part, 0, len(req.Parts))
	var prefix strings.Builder
	for _, p := range req.Parts {
		if len(p.ImageData) > 0 {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{
				MIMEType: p.MIMEType,
				Data:     p.ImageData,
			}})
			continue
		}
		parts = append(parts, &genai.Part{Text: p.Text})
		if p.Ephemeral {
			prefix.WriteString(p.Text)
		}
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	cacheKey, cacheWarm := c.promptCache.touch(c.settings.Model, c.settings.SystemInstructions, prefix.String())

	start := time.Now()
	raw, err := c.generator.GenerateContent(callCtx, contents)
	if err != nil {
		return nil, classifyTransportError(err, ctx)
	}

	text, stop, refused := extractCandidate(raw)
	if refused {
		return nil, errs.New(errs.KindUpstreamRefusal,
			"model %q refused the request (stop reason %s)", c.name, stop)
	}
	if text == "" {
		return nil, errs.New(errs.KindUpstreamTransient,
			"model %q returned an empty candidate", c.name)
	}

	usage := usageFrom(raw, cacheWarm, prefix.Len())
	resp := &Response{
		Text:       text,
		StopReason: stop,
		Usage:      usage,
		Cost:       c.CostOf(usage),
	}
	c.promptCache.commit(cacheKey)
	slog.Debug("model call complete",
		"agent", c.name,
		"stop_reason", stop,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cache_read_tokens", usage.CacheReadTokens,
		"elapsed", time.Since(start))
	return resp, nil
}

// CostOf converts a usage record to USD using the agent's configured rates.
// Cached input tokens are billed at the discounted rate.
func (c *Client) CostOf(usage model.TokenUsage) float64 {
	inRate := c.settings.InputCostPerMTok
	if inRate <= 0 {
		inRate = DefaultInputCostPerMTok
	}
	outRate := c.settings.OutputCostPerMTok
	if outRate <= 0 {
		outRate = DefaultOutputCostPerMTok
	}
	discount := c.settings.CacheReadDiscount
	if discount <= 0 || discount > 1 {
		discount = DefaultCacheReadDiscount
	}

	freshIn := usage.InputTokens - usage.CacheReadTokens
	if freshIn < 0 {
		freshIn = 0
	}
	cost := float64(freshIn) / 1e6 * inRate
	cost += float64(usage.CacheReadTokens) / 1e6 * inRate * (1 - discount)
	cost += float64(usage.OutputTokens) / 1e6 * outRate
	return cost
}

// extractCandidate pulls the first candidate's text out of a raw response and
// reports whether the model refused to answer.
func extractCandidate(raw *genai.GenerateContentResponse) (text string, stop string, refused bool) {
	if raw == nil || len(raw.Candidates) == 0 {
		if raw != nil && raw.PromptFeedback != nil && raw.PromptFeedback.BlockReason != "" {
			return "", string(raw.PromptFeedback.BlockReason), true
		}
		return "", "", false
	}
	cand := raw.Candidates[0]
	stop = string(cand.FinishReason)
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return "", stop, true
	}
	if cand.Content != nil {
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
		text = sb.String()
	}
	return text, stop, false
}

// usageFrom maps the backend's usage metadata into the local accounting type.
// When the backend did not attribute cached tokens but the prompt cache was
// warm for this prefix, the cached-read count is estimated from the prefix
// length (roughly four bytes per token).
func usageFrom(raw *genai.GenerateContentResponse, cacheWarm bool, prefixBytes int) model.TokenUsage {
	var usage model.TokenUsage
	if raw != nil && raw.UsageMetadata != nil {
		usage.InputTokens = int64(raw.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(raw.UsageMetadata.CandidatesTokenCount)
		usage.CacheReadTokens = int64(raw.UsageMetadata.CachedContentTokenCount)
	}
	if usage.CacheReadTokens == 0 && cacheWarm && prefixBytes > 0 {
		estimated := int64(prefixBytes / 4)
		if estimated > usage.InputTokens {
			estimated = usage.InputTokens
		}
		usage.CacheReadTokens = estimated
	}
	return usage
}

// classifyTransportError maps a transport failure to a typed error kind.
func classifyTransportError(err error, ctx context.Context) error {
	if ctx.Err() != nil {
		return errs.Wrap(err, errs.KindCancelled, "llm call cancelled")
	}
	var apiErr genai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch {
		case apiErr.Code == 429:
			return errs.Wrap(err, errs.KindUpstreamTransient, "model rate limited")
		case apiErr.Code >= 500:
			return errs.Wrap(err, errs.KindUpstreamTransient, "model backend error")
		case apiErr.Code == 400:
			return errs.Wrap(err, errs.KindValidation, "model rejected request")
		}
	}
	return errs.Wrap(err, errs.KindUpstreamTransient, "model transport failure")
}

// asAPIError unwraps err looking for a structured backend error.
func asAPIError(err error, target *genai.APIError) bool {
	return errors.As(err, target)
}

// backoffDelay computes the exponential backoff with full jitter for the
// given attempt number (1-based).
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
}

// sleepContext sleeps for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
