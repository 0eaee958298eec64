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

// Package workflow combines commands into the pipelines the application runs.
// This file implements the prompt-to-video generation workflow.
package workflow

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
)

const (
	GenerationWorkflowName = "generation-pipeline"
	DownloadTimeout        = 5 * time.Minute
)

// GenerationDependencies are the external systems the generation chain talks
// to. Nil storage, inserter or router fields disable the matching feature.
type GenerationDependencies struct {
	RouterModel           cloud.ContentGenerator
	NarrationModels       map[string]cloud.ContentGenerator // Keyed by style.
	DefaultNarrationModel cloud.ContentGenerator
	ImageModel            commands.ImageGenerator
	VideoModel            commands.VideoGenerator
	ObjectReader          commands.ObjectReader
	ObjectWriter          commands.ObjectWriter
	Inserter              commands.Inserter
	HTTPClient            *http.Client
	APIKey                string
	WorkDir               string // Temporary images and clips; os.TempDir() when empty.
}

// NewGenerationDependencies resolves the configured models and clients. Each
// style gets a narration model carrying that style's system instructions.
func NewGenerationDependencies(config *cloud.Config, clients *cloud.ServiceClients) (*GenerationDependencies, error) {
	deps := &GenerationDependencies{
		NarrationModels: make(map[string]cloud.ContentGenerator),
		HTTPClient:      &http.Client{Timeout: DownloadTimeout},
		APIKey:          clients.APIKey,
	}

	if router, ok := clients.AgentModels[config.Application.RouterModel]; ok && router != nil {
		deps.RouterModel = router
	}
	narration, ok := clients.AgentModels[config.Application.NarrationModel]
	if !ok || narration == nil {
		return nil, fmt.Errorf("narration model %q is not configured", config.Application.NarrationModel)
	}
	deps.DefaultNarrationModel = narration
	for key, style := range config.Styles {
		if style.SystemInstructions != "" {
			deps.NarrationModels[key] = narration.WithSystemInstructions(style.SystemInstructions)
		}
	}

	image, ok := clients.ImageModels[config.Application.ImageModel]
	if !ok || image == nil {
		return nil, fmt.Errorf("image model %q is not configured", config.Application.ImageModel)
	}
	deps.ImageModel = image

	video, ok := clients.VideoModels[config.Application.VideoModel]
	if !ok || video == nil {
		return nil, fmt.Errorf("video model %q is not configured", config.Application.VideoModel)
	}
	deps.VideoModel = video

	if clients.StorageClient != nil {
		store := cloud.NewObjectStore(clients.StorageClient)
		deps.ObjectReader = store
		deps.ObjectWriter = store
	}
	if clients.BiqQueryClient != nil && config.BigQueryDataSource.GenerationTable != "" {
		deps.Inserter = clients.BiqQueryClient.
			Dataset(config.BigQueryDataSource.DatasetName).
			Table(config.BigQueryDataSource.GenerationTable).
			Inserter()
	}
	return deps, nil
}

// GenerationWorkflow turns a JSON generation request in CtxIn into a final
// video. The generation record is kept under commands.GenerationParam.
type GenerationWorkflow struct {
	cor.BaseCommand
	config *cloud.Config
	deps   *GenerationDependencies
	chain  *cor.BaseChain
}

func NewGenerationWorkflow(config *cloud.Config, deps *GenerationDependencies) (*GenerationWorkflow, error) {
	out := &GenerationWorkflow{
		BaseCommand: *cor.NewBaseCommand(GenerationWorkflowName),
		config:      config,
		deps:        deps,
	}
	if err := out.initializeChain(); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *GenerationWorkflow) initializeChain() error {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: JSON payload to request, open the generation record.
	out.AddCommand(commands.NewGenerationTriggerReader("read-generation-request", w.config))

	// Step 2: pick the style preset.
	router, err := commands.NewStyleRouter("route-style", w.config, w.deps.RouterModel)
	if err != nil {
		return err
	}
	out.AddCommand(router)

	// Steps 3 and 4: narration and the visual prompts.
	writer, err := commands.NewNarrationWriter("write-narration", w.config, w.deps.NarrationModels, w.deps.DefaultNarrationModel)
	if err != nil {
		return err
	}
	out.AddCommand(writer)
	out.AddCommand(commands.NewNarrationJsonToStruct("convert-narration"))

	// Step 5: still frame.
	out.AddCommand(commands.NewImageGeneratorCommand("generate-image", w.deps.ImageModel, w.deps.WorkDir))

	// Step 6: animate it; this is the long-running part.
	out.AddCommand(commands.NewVideoGeneratorCommand("generate-video", w.deps.VideoModel, w.config.Polling))

	// Step 7: bring the clips to disk, skipping the ones that fail.
	out.AddCommand(commands.NewClipDownloader("download-clips", w.deps.ObjectReader, w.deps.HTTPClient, w.deps.APIKey, w.deps.WorkDir).
		WithWorkers(w.config.Application.ThreadPoolSize))

	// Step 8: one clip is moved, several are concatenated by FFmpeg.
	out.AddCommand(commands.NewClipStitcher("stitch-clips", w.config.FfmpegPath(), w.config.OutputDir()))

	// Step 9: optional upload of the final video.
	out.AddCommand(commands.NewGCSFileUpload("publish-video", w.deps.ObjectWriter, w.config.Storage.OutputBucket))

	// Step 10: record the run.
	out.AddCommand(commands.NewGenerationPersistToBigQuery("write-to-bigquery", w.deps.Inserter))

	w.chain = out
	return nil
}

// Steps returns the names of the chain's commands in execution order.
func (w *GenerationWorkflow) Steps() []string {
	return w.chain.Commands()
}

func (w *GenerationWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context) && context.Get(cor.CtxIn) != nil
}

func (w *GenerationWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
