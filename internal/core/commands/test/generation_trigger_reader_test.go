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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

func TestParseGenerationRequest(t *testing.T) {
	config := test.GetConfig()

	req, err := commands.ParseGenerationRequest([]byte(`{"prompt":"  a lighthouse in a storm  ","style":" cinematic "}`), config)
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse in a storm", req.Prompt)
	assert.Equal(t, "cinematic", req.Style)

	req, err = commands.ParseGenerationRequest([]byte(`{"prompt":"a lighthouse"}`), config)
	require.NoError(t, err)
	assert.Empty(t, req.Style)

	_, err = commands.ParseGenerationRequest([]byte(`{"prompt":"   "}`), config)
	assert.ErrorIs(t, err, commands.ErrEmptyPrompt)

	_, err = commands.ParseGenerationRequest([]byte(`{"prompt":"x","style":"noir"}`), config)
	assert.ErrorContains(t, err, "unknown style")

	_, err = commands.ParseGenerationRequest([]byte(`not json`), config)
	assert.Error(t, err)
}

func TestGenerationTriggerReaderOpensRecord(t *testing.T) {
	reader := commands.NewGenerationTriggerReader("read", test.GetConfig())

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, []byte(`{"prompt":"new running shoes"}`))

	require.True(t, reader.IsExecutable(chainCtx))
	reader.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	gen := chainCtx.Get(commands.GenerationParam).(*model.Generation)
	req := chainCtx.Get(commands.RequestParam).(*model.GenerationRequest)
	assert.NotEmpty(t, gen.Id)
	assert.Equal(t, gen.Id, req.Id)
	assert.Equal(t, "new running shoes", gen.Prompt)
	assert.Equal(t, model.StatusRunning, gen.Status)
	assert.Same(t, req, chainCtx.Get(cor.CtxOut))
}

func TestGenerationTriggerReaderKeepsExistingRecord(t *testing.T) {
	reader := commands.NewGenerationTriggerReader("read", test.GetConfig())
	existing := model.NewGeneration(&model.GenerationRequest{Id: "fixed-id", Prompt: "x"})

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(commands.GenerationParam, existing)
	chainCtx.Add(cor.CtxIn, `{"prompt":"x"}`)
	reader.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Same(t, existing, chainCtx.Get(commands.GenerationParam))
	assert.Equal(t, "fixed-id", chainCtx.Get(commands.RequestParam).(*model.GenerationRequest).Id)
}

func TestGenerationTriggerReaderRejectsBadPayload(t *testing.T) {
	reader := commands.NewGenerationTriggerReader("read", test.GetConfig())

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, 42)
	reader.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
	assert.ErrorIs(t, chainCtx.GetErrors()["read"], cor.ErrInvalidInput)

	chainCtx = cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `{"prompt":""}`)
	reader.Execute(chainCtx)
	assert.ErrorIs(t, chainCtx.GetErrors()["read"], commands.ErrEmptyPrompt)
	assert.ErrorIs(t, chainCtx.GetErrors()["read"], cor.ErrInvalidInput)
	assert.Nil(t, chainCtx.Get(commands.GenerationParam))
}

func TestParseGenerationRequestMatchesStyleIgnoringCase(t *testing.T) {
	req, err := commands.ParseGenerationRequest([]byte(`{"prompt":"x","style":" Cinematic "}`), test.GetConfig())
	require.NoError(t, err)
	assert.Equal(t, "cinematic", req.Style)

	req, err = commands.ParseGenerationRequest([]byte(`{"prompt":"x","style":"HIGH-ENERGY"}`), test.GetConfig())
	require.NoError(t, err)
	assert.Equal(t, "high-energy", req.Style)
}
