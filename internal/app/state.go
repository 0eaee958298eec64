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

// Package app assembles the configuration, cloud clients, workflow and
// services shared by the server and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/workflow"
)

const (
	DefaultConfigDir = "configs"
	DefaultRuntime   = "local"
	GenerationTopic  = "GenerationTopic" // Key in [topics] and [topic_subscriptions].
)

// State holds everything a process needs to run generations.
type State struct {
	Config     *cloud.Config
	Cloud      *cloud.ServiceClients
	Workflow   *workflow.GenerationWorkflow
	Generation *services.GenerationService
}

// SetupOS loads .env files into the environment and defaults the config
// location variables that are not already set.
func SetupOS(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing variables win over the file; a missing file is fine.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, DefaultConfigDir); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, DefaultRuntime); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads and validates the layered TOML configuration.
func LoadConfig() (*cloud.Config, error) {
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// NewState creates the cloud clients and wires the workflow into the
// generation service.
func NewState(ctx context.Context, config *cloud.Config) (*State, error) {
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}

	deps, err := workflow.NewGenerationDependencies(config, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}
	generation, err := workflow.NewGenerationWorkflow(config, deps)
	if err != nil {
		clients.Close()
		return nil, err
	}

	opts := services.GenerationServiceOptions{
		Progress: services.NewProgressHub(services.DefaultProgressHistory),
	}
	if deps.Inserter != nil {
		opts.Recorder = deps.Inserter
	}
	if topic, ok := clients.PubSubTopics[GenerationTopic]; ok && topic != nil {
		opts.Publisher = topic
	}
	if clients.BiqQueryClient != nil && config.BigQueryDataSource.GenerationTable != "" {
		opts.Store = &services.BigQueryGenerationStore{
			BigqueryClient: clients.BiqQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			Table:          config.BigQueryDataSource.GenerationTable,
		}
	}
	if clients.IAMClient != nil && clients.StorageClient != nil {
		opts.Signer = &services.GCSURLSigner{
			StorageClient: clients.StorageClient,
			IAMClient:     clients.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
		}
	}

	slog.Info("generation pipeline ready", "steps", generation.Steps(), "styles", config.StyleKeys())
	return &State{
		Config:     config,
		Cloud:      clients,
		Workflow:   generation,
		Generation: services.NewGenerationService(config, generation, generation.Steps(), opts),
	}, nil
}

// StartListeners attaches the generation service to the Pub/Sub
// subscription, if one is configured, and starts receiving.
func (s *State) StartListeners(ctx context.Context) {
	listener, ok := s.Cloud.PubSubListeners[GenerationTopic]
	if !ok || listener == nil {
		slog.Info("no generation subscription configured; async submissions are not consumed here")
		return
	}
	listener.SetCommand(s.Generation.AsCommand())
	listener.Listen(ctx)
}

func (s *State) Close() {
	if s.Cloud != nil {
		s.Cloud.Close()
	}
}
