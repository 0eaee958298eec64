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

package commands_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

func TestStyleRouterExplicitStyleSkipsModel(t *testing.T) {
	llm := &test.FakeLLM{Responses: []string{`{"style":"high-energy"}`}}
	router, err := commands.NewStyleRouter("route", test.GetConfig(), llm)
	require.NoError(t, err)

	chainCtx, gen := newChainContext(t, "a quiet forest", "advertisement")
	require.True(t, router.IsExecutable(chainCtx))
	router.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, 0, llm.Calls())
	assert.Equal(t, "advertisement", gen.Style)
	assert.Equal(t, commands.RouteExplicit, gen.Reason)
	assert.Equal(t, "Advertisement", chainCtx.Get(commands.StyleParam).(*cloud.Style).Name)
}

func TestStyleRouterUsesModelDecision(t *testing.T) {
	llm := &test.FakeLLM{Responses: []string{"```json\n{\"style\":\" High-Energy \",\"reason\":\"it is a workout\"}\n```"}}
	router, err := commands.NewStyleRouter("route", test.GetConfig(), llm)
	require.NoError(t, err)

	chainCtx, gen := newChainContext(t, "morning cardio routine", "")
	router.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, "high-energy", gen.Style)
	assert.Equal(t, "it is a workout", gen.Reason)
	require.Equal(t, 1, llm.Calls())
	assert.Contains(t, llm.Prompts[0], "morning cardio routine")
	assert.Contains(t, llm.Prompts[0], "cinematic - Cinematic: Story driven")
	assert.Contains(t, llm.Prompts[0], `"style":"advertisement"`)
}

func TestStyleRouterFallsBack(t *testing.T) {
	cases := []struct {
		name   string
		llm    cloud.ContentGenerator
		prompt string
		style  string
		reason string
	}{
		{"model error uses keywords", &test.FakeLLM{Err: errors.New("quota")}, "a product launch for our brand", "advertisement", commands.RouteKeyword},
		{"unknown style uses keywords", &test.FakeLLM{Responses: []string{`{"style":"noir"}`}}, "leg day at the gym", "high-energy", commands.RouteKeyword},
		{"bad json uses default", &test.FakeLLM{Responses: []string{"cinematic, probably"}}, "something", "cinematic", commands.RouteDefault},
		{"no model uses default", nil, "an abstract idea", "cinematic", commands.RouteDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, err := commands.NewStyleRouter("route", test.GetConfig(), tc.llm)
			require.NoError(t, err)

			chainCtx, gen := newChainContext(t, tc.prompt, "")
			router.Execute(chainCtx)

			require.False(t, chainCtx.HasErrors(), "routing never fails the run")
			assert.Equal(t, tc.style, gen.Style)
			assert.Equal(t, tc.reason, gen.Reason)
			assert.NotNil(t, chainCtx.Get(commands.StyleParam))
		})
	}
}

func TestStyleRouterRejectsBadTemplate(t *testing.T) {
	config := test.GetConfig()
	config.PromptTemplates.RouterPrompt = "{{.PROMPT"
	_, err := commands.NewStyleRouter("route", config, nil)
	assert.Error(t, err)
}
