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
// This file initializes every external client the pipeline depends on and
// bundles them into a single ServiceClients container, which is handed to the
// rest of the application as a dependency-injection root. No other package
// constructs a cloud client directly.
package cloud

import (
	"context"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is the container for all external service clients: Google
// Cloud infrastructure (Storage, Pub/Sub, BigQuery, IAM) and the configured
// generative model wrappers keyed by agent role.
type ServiceClients struct {
	StorageClient  *storage.Client
	PubsubClient   *pubsub.Client
	GenAIClient    *genai.Client
	BigQueryClient *bigquery.Client
	IAMClient      *credentials.IamCredentialsClient
	AgentModels    map[string]*QuotaAwareGenerativeAIModel
}

// Close releases all client connections. Useful for tests and controlled
// shutdowns; in the server the root context teardown covers the rest.
func (c *ServiceClients) Close() {
	_ = c.StorageClient.Close()
	_ = c.PubsubClient.Close()
	_ = c.BigQueryClient.Close()
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients initializes all Google Cloud clients from the
// configuration and wraps each configured agent model with its rate limiter.
//
// Inputs:
//   - ctx: the root application context governing client lifecycles.
//   - config: the loaded application configuration.
//
// Outputs:
//   - *ServiceClients: the fully initialized container.
//   - error: the first client initialization failure, if any.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	sc, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, err
	}

	bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, err
	}

	// The IAM credentials client is only needed for keyless URL signing, so
	// it is created only when a signer identity is configured.
	var ic *credentials.IamCredentialsClient
	if config.Application.SignerServiceAccountEmail != "" {
		ic, err = credentials.NewIamCredentialsClient(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Build one rate-limited wrapper per configured agent role. Each role
	// carries its own system instructions, sampling settings and output MIME
	// type, so the role name fully determines call behavior.
	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for amKey, values := range config.AgentModels {
		generateConfig := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](values.Temperature),
			TopP:            genai.Ptr[float32](values.TopP),
			TopK:            genai.Ptr[float32](values.TopK),
			MaxOutputTokens: values.MaxTokens,
			SafetySettings:  DefaultSafetySettings,
			ResponseMIMEType: values.OutputFormat,
		}
		if values.SystemInstructions != "" {
			generateConfig.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: values.SystemInstructions}},
			}
		}
		agentModels[amKey] = NewQuotaAwareModel(generateConfig, values.Model, gc.Models, values.RateLimit)
	}

	return &ServiceClients{
		StorageClient:  sc,
		PubsubClient:   pc,
		GenAIClient:    gc,
		BigQueryClient: bc,
		IAMClient:      ic,
		AgentModels:    agentModels,
	}, nil
}
