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

// Package cloud defines the application configuration, loaded from layered
// TOML files, and the container of external service clients built from it.
// Configuration is the only place model names, credentials defaults, worker
// pool sizes, and storage locations are declared; every other package
// receives what it needs through constructors.
package cloud

import "google.golang.org/genai"

// Environment variables read as credential defaults. Per-user secrets stored
// in the database override these inside a job.
const (
	EnvLLMAPIKey        = "LLM_API_KEY"
	EnvImageModelAPIKey = "IMAGE_MODEL_API_KEY"
	EnvVoiceAPIKey      = "VOICE_API_KEY"
	EnvSearchAPIKeys    = "SEARCH_API_KEYS" // comma-separated pool
)

// DefaultSafetySettings turns off content blocking for all harm categories.
// The pipeline analyzes and generates long-form entertainment scripts; input
// data is operator-supplied and trusted.
var DefaultSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

// AgentModel configures one named LLM role (taxonomy classification, shared
// series matching, breakdown, outline, script, thumbnail vision). The cost
// rates feed the script generator's cost report.
type AgentModel struct {
	Model               string  `toml:"model"`
	SystemInstructions  string  `toml:"system_instructions"`
	Temperature         float32 `toml:"temperature"`
	TopP                float32 `toml:"top_p"`
	TopK                float32 `toml:"top_k"`
	MaxTokens           int32   `toml:"max_tokens"`
	OutputFormat        string  `toml:"output_format"` // "application/json" or "text/plain"
	RateLimit           int     `toml:"rate_limit"`    // requests per second
	InputCostPerMTok    float64 `toml:"input_cost_per_mtok"`
	OutputCostPerMTok   float64 `toml:"output_cost_per_mtok"`
	CacheReadDiscount   float64 `toml:"cache_read_discount"`   // e.g. 0.9 means cached input costs 10%
	TimeoutInSeconds    int     `toml:"timeout_in_seconds"`    // per-call deadline, default 120
	MaxAttempts         int     `toml:"max_attempts"`          // transient retry budget, default 5
	PromptCacheCapacity int     `toml:"prompt_cache_capacity"` // LRU entries, default 64
}

// ImageModel configures the fine-tunable image generation model used by the
// thumbnail pipeline.
type ImageModel struct {
	Model                string `toml:"model"`
	TrainingPollSeconds  int    `toml:"training_poll_seconds"`  // polling interval while a fine-tune runs
	TrainingMaxSeconds   int    `toml:"training_max_seconds"`   // hard cap on the polling loop, default 3600
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
}

// Search configures the video platform client: the API key pool, per-op
// cache TTLs, and the HTML-scrape fallback used when the whole pool is
// quota-exhausted.
type Search struct {
	APIKeys             []string `toml:"api_keys"`
	SearchCacheTTLSecs  int      `toml:"search_cache_ttl_seconds"`
	ChannelCacheTTLSecs int      `toml:"channel_cache_ttl_seconds"`
	VideoCacheTTLSecs   int      `toml:"video_cache_ttl_seconds"`
	EnableScrapeFallbck bool     `toml:"enable_scrape_fallback"`
}

// Storage names the GCS buckets used by the thumbnail pipeline.
type Storage struct {
	ThumbnailBucket string `toml:"thumbnail_bucket"` // rendered thumbnails
	ReferenceBucket string `toml:"reference_bucket"` // operator-uploaded reference images
}

// BigQueryDataSource names the analytics sink for theme performance rows.
type BigQueryDataSource struct {
	DatasetName           string `toml:"dataset"`
	ThemePerformanceTable string `toml:"theme_performance_table"`
}

// Database configures the document store connection.
type Database struct {
	DSN string `toml:"dsn"` // Postgres connection string
}

// Topics names the Pub/Sub topics the orchestrator publishes to.
type Topics struct {
	JobEvents string `toml:"job_events"` // empty disables publishing
}

// Config is the root configuration aggregate loaded from TOML files.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		LLMWorkerSlots            int    `toml:"llm_worker_slots"`       // global in-flight LLM call bound, default 5
		DiscoveryWorkerSlots      int    `toml:"discovery_worker_slots"` // search fan-out bound, default 8
		JobWorkerSlots            int    `toml:"job_worker_slots"`       // concurrent background jobs
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	} `toml:"application"`
	Database           Database              `toml:"database"`
	Storage            Storage               `toml:"storage"`
	BigQueryDataSource BigQueryDataSource    `toml:"big_query_data_source"`
	Topics             Topics                `toml:"topics"`
	Search             Search                `toml:"search"`
	AgentModels        map[string]AgentModel `toml:"agent_models"`
	ImageModels        map[string]ImageModel `toml:"image_models"`
}

// NewConfig creates a Config with its maps initialized so the TOML decoder
// can populate them without nil checks.
func NewConfig() *Config {
	return &Config{
		AgentModels: make(map[string]AgentModel),
		ImageModels: make(map[string]ImageModel),
	}
}
