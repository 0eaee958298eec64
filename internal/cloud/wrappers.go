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

// This file wraps the genai model handles with client-side rate limiting so
// that a burst of generations cannot exceed the project's quota. Each wrapper
// blocks on a token bucket before calling the API and gives up when the
// caller's context is done.
package cloud

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

func newLimiter(requestsPerSecond int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	// Burst of requestsPerSecond, refilled at one token per second.
	return rate.NewLimiter(rate.Every(time.Second), requestsPerSecond)
}

// QuotaAwareGenerativeAIModel is a rate-limited text model.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               newLimiter(requestsPerSecond),
	}
}

func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// WithSystemInstructions returns a model that shares this model's handle and
// rate limiter but uses different system instructions. An empty string
// returns q unchanged.
func (q *QuotaAwareGenerativeAIModel) WithSystemInstructions(instructions string) *QuotaAwareGenerativeAIModel {
	if instructions == "" {
		return q
	}
	cfg := *q.GenerativeContentConfig
	cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instructions}}}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: &cfg,
		ModelName:               q.ModelName,
		ModelHandle:             q.ModelHandle,
		RateLimit:               q.RateLimit,
	}
}

// QuotaAwareImageModel is a rate-limited Imagen model.
type QuotaAwareImageModel struct {
	ModelName   string
	MIMEType    string
	ModelHandle *genai.Models
	RateLimit   *rate.Limiter
}

func NewQuotaAwareImageModel(name string, mimeType string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareImageModel {
	return &QuotaAwareImageModel{
		ModelName:   name,
		MIMEType:    mimeType,
		ModelHandle: modelHandle,
		RateLimit:   newLimiter(requestsPerSecond),
	}
}

func (q *QuotaAwareImageModel) GenerateImages(ctx context.Context, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if config != nil && config.OutputMIMEType == "" {
		config.OutputMIMEType = q.MIMEType
	}
	return q.ModelHandle.GenerateImages(ctx, q.ModelName, prompt, config)
}

// QuotaAwareVideoModel is a rate-limited Veo model. Starting an operation is
// rate limited; polling it is not.
type QuotaAwareVideoModel struct {
	ModelName        string
	OutputGCSURI     string
	ModelHandle      *genai.Models
	OperationsHandle *genai.Operations
	RateLimit        *rate.Limiter
}

func NewQuotaAwareVideoModel(name string, outputGCSURI string, modelHandle *genai.Models, operationsHandle *genai.Operations, requestsPerSecond int) *QuotaAwareVideoModel {
	return &QuotaAwareVideoModel{
		ModelName:        name,
		OutputGCSURI:     outputGCSURI,
		ModelHandle:      modelHandle,
		OperationsHandle: operationsHandle,
		RateLimit:        newLimiter(requestsPerSecond),
	}
}

func (q *QuotaAwareVideoModel) GenerateVideos(ctx context.Context, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if config != nil && config.OutputGCSURI == "" {
		config.OutputGCSURI = q.OutputGCSURI
	}
	return q.ModelHandle.GenerateVideos(ctx, q.ModelName, prompt, image, config)
}

func (q *QuotaAwareVideoModel) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return q.OperationsHandle.GetVideosOperation(ctx, op, nil)
}
