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

package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"

	// EnvAPIKey holds the Gemini API key when the "gemini" backend is used.
	EnvAPIKey = "GOOGLE_API_KEY"
)

// ServiceClients holds every external client the application talks to. The
// Google Cloud clients are only created when a project id is configured, so
// a local run against the Gemini API needs nothing but an API key.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Cloud Storage; nil without a project.
	PubsubClient    *pubsub.Client                    // Pub/Sub; nil without a project.
	GenAIClient     *genai.Client                     // Gemini / Vertex AI.
	BiqQueryClient  *bigquery.Client                  // BigQuery; nil without a project.
	IAMClient       *credentials.IamCredentialsClient // Signs GCS URLs; nil without a signer.
	PubSubListeners map[string]*PubSubListener        // Keyed by the logical subscription name.
	PubSubTopics    map[string]*PubSubPublisher       // Keyed by the logical topic name.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
	ImageModels     map[string]*QuotaAwareImageModel
	VideoModels     map[string]*QuotaAwareVideoModel
	APIKey          string // Sent with HTTP downloads of Gemini API file URIs.
}

func (c *ServiceClients) Close() {
	for _, t := range c.PubSubTopics {
		t.Stop()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewGenAIClient creates the genai client for the configured backend.
func NewGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	if config.Application.Backend == BackendGemini {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  os.Getenv(EnvAPIKey),
			Backend: genai.BackendGeminiAPI,
		})
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
}

func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	gc, err := NewGenAIClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}

	cloud = &ServiceClients{
		GenAIClient:     gc,
		PubSubListeners: make(map[string]*PubSubListener),
		PubSubTopics:    make(map[string]*PubSubPublisher),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
		ImageModels:     make(map[string]*QuotaAwareImageModel),
		VideoModels:     make(map[string]*QuotaAwareVideoModel),
	}
	if config.Application.Backend == BackendGemini {
		cloud.APIKey = os.Getenv(EnvAPIKey)
	}

	projectID := config.Application.GoogleProjectId
	if projectID != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		if len(config.TopicSubscriptions) > 0 || len(config.Topics) > 0 {
			if cloud.PubsubClient, err = pubsub.NewClient(ctx, projectID); err != nil {
				return nil, fmt.Errorf("error creating pubsub client: %w", err)
			}
		}
		if config.BigQueryDataSource.DatasetName != "" {
			if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, projectID); err != nil {
				return nil, fmt.Errorf("error creating bigquery client: %w", err)
			}
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				return nil, fmt.Errorf("error creating iam credentials client: %w", err)
			}
		}
	} else {
		slog.Info("no google project configured; storage, pubsub and bigquery are disabled")
	}

	// Listeners start without a command; the workflow is attached at startup.
	if cloud.PubsubClient != nil {
		for subKey, values := range config.TopicSubscriptions {
			timeout := time.Duration(values.TimeoutInSeconds) * time.Second
			cloud.PubSubListeners[subKey] = NewPubSubListener(cloud.PubsubClient, values.Name, timeout, nil)
		}
		for topicKey, topicID := range config.Topics {
			cloud.PubSubTopics[topicKey] = NewPubSubPublisher(cloud.PubsubClient, topicID)
		}
	}

	for amKey, values := range config.AgentModels {
		model := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](values.Temperature),
			TopP:              genai.Ptr[float32](values.TopP),
			TopK:              genai.Ptr[float32](values.TopK),
			MaxOutputTokens:   values.MaxTokens,
			SafetySettings:    DefaultSafetySettings,
			ResponseMIMEType:  values.OutputFormat,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}},
		}
		cloud.AgentModels[amKey] = NewQuotaAwareModel(model, values.Model, gc.Models, values.RateLimit)
	}
	for imKey, values := range config.ImageModels {
		cloud.ImageModels[imKey] = NewQuotaAwareImageModel(values.Model, values.MIMEType, gc.Models, values.RateLimit)
	}
	for vmKey, values := range config.VideoModels {
		cloud.VideoModels[vmKey] = NewQuotaAwareVideoModel(values.Model, values.OutputGCSURI, gc.Models, gc.Operations, values.RateLimit)
	}

	return cloud, nil
}
