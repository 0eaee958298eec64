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

package workflow_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

type fakes struct {
	router    *test.FakeLLM
	narration *test.FakeLLM
	image     *test.FakeImageModel
	video     *test.FakeVideoModel
	inserter  *test.FakeInserter
}

func newFakeDependencies(t *testing.T) (*workflow.GenerationDependencies, *fakes) {
	t.Helper()
	f := &fakes{
		router:    &test.FakeLLM{Responses: []string{`{"style":"advertisement","reason":"sells a product"}`}},
		narration: &test.FakeLLM{Responses: []string{test.NarrationJSON}},
		image:     &test.FakeImageModel{},
		video:     &test.FakeVideoModel{PollsUntilDone: 1},
		inserter:  &test.FakeInserter{},
	}
	return &workflow.GenerationDependencies{
		RouterModel:           f.router,
		DefaultNarrationModel: f.narration,
		ImageModel:            f.image,
		VideoModel:            f.video,
		Inserter:              f.inserter,
		WorkDir:               t.TempDir(),
	}, f
}

func runWorkflow(t *testing.T, cfg *cloud.Config, deps *workflow.GenerationDependencies, req *model.GenerationRequest) cor.Context {
	t.Helper()
	wf, err := workflow.NewGenerationWorkflow(cfg, deps)
	require.NoError(t, err)

	traceCtx, span := tracer.Start(ctx, t.Name())
	t.Cleanup(func() { span.End() })

	payload, err := json.Marshal(req)
	require.NoError(t, err)

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(traceCtx)
	chainCtx.Add(cor.CtxIn, string(payload))
	t.Cleanup(chainCtx.Close)

	require.True(t, wf.IsExecutable(chainCtx))
	wf.Execute(chainCtx)
	return chainCtx
}

func testConfig(t *testing.T) *cloud.Config {
	cfg := test.GetConfig()
	cfg.Application.OutputDir = filepath.Join(t.TempDir(), "output")
	cfg.Polling = cloud.Polling{IntervalSeconds: 1, TimeoutSeconds: 10}
	return cfg
}

func TestGenerationWorkflowSteps(t *testing.T) {
	deps, _ := newFakeDependencies(t)
	wf, err := workflow.NewGenerationWorkflow(config, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"read-generation-request",
		"route-style",
		"write-narration",
		"convert-narration",
		"generate-image",
		"generate-video",
		"download-clips",
		"stitch-clips",
		"publish-video",
		"write-to-bigquery",
	}, wf.Steps())
}

func TestGenerationWorkflowSingleClip(t *testing.T) {
	cfg := testConfig(t)
	deps, f := newFakeDependencies(t)

	chainCtx := runWorkflow(t, cfg, deps, &model.GenerationRequest{Prompt: "launch video for a reusable water bottle"})
	require.False(t, chainCtx.HasErrors(), "%v", cor.JoinErrors(chainCtx))

	gen := chainCtx.Get(commands.GenerationParam).(*model.Generation)
	logger.Info("generation finished", "id", gen.Id, "video", gen.VideoPath)

	assert.Equal(t, model.StatusSucceeded, gen.Status)
	assert.Equal(t, "advertisement", gen.Style)
	assert.Equal(t, "sells a product", gen.Reason)
	assert.Equal(t, "Morning Brew", gen.Title)
	assert.Equal(t, cfg.OutputDir(), filepath.Dir(gen.VideoPath))
	assert.FileExists(t, gen.VideoPath)
	assert.FileExists(t, gen.ImagePath)
	assert.Empty(t, gen.VideoUrl)
	assert.Same(t, gen, chainCtx.Get(cor.CtxIn))

	require.Len(t, f.image.Prompts, 1)
	assert.Equal(t, "a coffee cup at dawn studio product photography", f.image.Prompts[0])
	require.Len(t, f.video.Configs, 1)
	assert.Equal(t, int32(1), f.video.Configs[0].NumberOfVideos)

	rows := f.inserter.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, gen.Id, rows[0].Id)

	// Intermediate files are temporary; only the output directory remains.
	chainCtx.Close()
	left, err := os.ReadDir(deps.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestGenerationWorkflowStopsAtFailingStep(t *testing.T) {
	cfg := testConfig(t)
	deps, f := newFakeDependencies(t)
	f.video.StartErr = errors.New("quota exceeded")

	chainCtx := runWorkflow(t, cfg, deps, &model.GenerationRequest{Prompt: "a stormy coastline", Style: "cinematic"})

	require.True(t, chainCtx.HasErrors())
	assert.Contains(t, chainCtx.GetErrors(), "generate-video")
	assert.Len(t, chainCtx.GetErrors(), 1)
	assert.Equal(t, 0, f.router.Calls(), "explicit style skips routing")
	assert.Empty(t, f.inserter.Snapshot())

	gen := chainCtx.Get(commands.GenerationParam).(*model.Generation)
	assert.Empty(t, gen.VideoPath)
}

func TestGenerationWorkflowRejectsEmptyPrompt(t *testing.T) {
	deps, f := newFakeDependencies(t)
	chainCtx := runWorkflow(t, testConfig(t), deps, &model.GenerationRequest{Prompt: " "})

	require.True(t, chainCtx.HasErrors())
	assert.ErrorIs(t, chainCtx.GetErrors()["read-generation-request"], commands.ErrEmptyPrompt)
	assert.Equal(t, 0, f.narration.Calls())
}

func TestNewGenerationDependencies(t *testing.T) {
	cfg := test.GetConfig()
	clients := &cloud.ServiceClients{
		AgentModels: map[string]*cloud.QuotaAwareGenerativeAIModel{
			"router":    cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-2.5-flash", nil, 1),
			"narration": cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-2.5-flash", nil, 1),
		},
		ImageModels: map[string]*cloud.QuotaAwareImageModel{
			"imagen": cloud.NewQuotaAwareImageModel("imagen-3.0-generate-002", "image/png", nil, 1),
		},
		VideoModels: map[string]*cloud.QuotaAwareVideoModel{
			"veo": cloud.NewQuotaAwareVideoModel("veo-2.0-generate-001", "", nil, nil, 1),
		},
	}

	deps, err := workflow.NewGenerationDependencies(cfg, clients)
	require.NoError(t, err)
	assert.NotNil(t, deps.RouterModel)
	assert.NotNil(t, deps.DefaultNarrationModel)
	assert.Nil(t, deps.ObjectReader)
	assert.Nil(t, deps.Inserter)

	// Only styles with their own system instructions get a dedicated model.
	assert.Len(t, deps.NarrationModels, 2)
	styled := deps.NarrationModels["high-energy"].(*cloud.QuotaAwareGenerativeAIModel)
	assert.Equal(t, "You are a hype video producer.", styled.GenerativeContentConfig.SystemInstruction.Parts[0].Text)

	delete(clients.VideoModels, "veo")
	_, err = workflow.NewGenerationDependencies(cfg, clients)
	assert.Error(t, err)
}
