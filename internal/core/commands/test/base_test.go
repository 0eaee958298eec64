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

// Package commands_test exercises each pipeline step in isolation against the
// fakes in the testutil package.
package commands_test

import (
	"context"
	"testing"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// newChainContext returns a context holding a request and an open generation
// record, as the trigger reader leaves it.
func newChainContext(t *testing.T, prompt string, style string) (cor.Context, *model.Generation) {
	t.Helper()
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	t.Cleanup(chainCtx.Close)

	req := &model.GenerationRequest{Prompt: prompt, Style: style}
	gen := model.NewGeneration(req)
	req.Id = gen.Id
	chainCtx.Add(commands.RequestParam, req)
	chainCtx.Add(commands.GenerationParam, gen)
	return chainCtx, gen
}

func withStyle(chainCtx cor.Context, config *cloud.Config, key string) *cloud.Style {
	style := config.Styles[key]
	chainCtx.Add(commands.StyleParam, &style)
	return &style
}

func withNarration(chainCtx cor.Context) *model.Narration {
	narration := &model.Narration{
		Title:       "Morning Brew",
		Narration:   "One cup sets the pace.",
		ImagePrompt: "a coffee cup at dawn, cinematic still",
		VideoPrompt: "steam rises from the cup, slow push in",
	}
	chainCtx.Add(commands.NarrationParam, narration)
	return narration
}
