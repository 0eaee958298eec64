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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface for the clip generation
// pipeline. Every run starts with GenerationTriggerReader, which turns the
// raw JSON payload (an HTTP body or a Pub/Sub message) into a request and
// opens the generation record that the later steps fill in.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

var ErrEmptyPrompt = errors.New("prompt must not be empty")

// GenerationTriggerReader parses a JSON generation request.
type GenerationTriggerReader struct {
	cor.BaseCommand
	config *cloud.Config
}

func NewGenerationTriggerReader(name string, config *cloud.Config) *GenerationTriggerReader {
	return &GenerationTriggerReader{BaseCommand: *cor.NewBaseCommand(name), config: config}
}

// ParseGenerationRequest decodes and validates a request payload. Style keys
// are matched case-insensitively. An unknown explicit style is rejected so the
// caller learns about the typo instead of silently getting a routed style.
func ParseGenerationRequest(in []byte, config *cloud.Config) (*model.GenerationRequest, error) {
	req := &model.GenerationRequest{}
	if err := json.Unmarshal(in, req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generation request: %w", err)
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Style = strings.ToLower(strings.TrimSpace(req.Style))
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.Style != "" {
		if _, ok := config.Styles[req.Style]; !ok {
			return nil, fmt.Errorf("unknown style %q", req.Style)
		}
	}
	return req, nil
}

func (c *GenerationTriggerReader) Execute(context cor.Context) {
	var payload []byte
	switch in := context.Get(c.GetInputParam()).(type) {
	case string:
		payload = []byte(in)
	case []byte:
		payload = in
	default:
		c.Fail(context, fmt.Errorf("%w: unsupported trigger payload %T", cor.ErrInvalidInput, in))
		return
	}

	req, err := ParseGenerationRequest(payload, c.config)
	if err != nil {
		// Retrying the same payload cannot succeed.
		c.Fail(context, fmt.Errorf("%w: %w", cor.ErrInvalidInput, err))
		return
	}

	// The service may have opened the record already so it can hand out the id.
	gen, ok := context.Get(GenerationParam).(*model.Generation)
	if !ok || gen == nil {
		gen = model.NewGeneration(req)
		context.Add(GenerationParam, gen)
	}
	req.Id = gen.Id

	c.Succeed(context)
	context.Add(RequestParam, req)
	context.Add(c.GetOutputParam(), req)
}
