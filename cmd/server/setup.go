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

package main

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-clip-studio/internal/app"
	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/workflow"
)

// StateManager holds the process-wide state of the server.
type StateManager struct {
	config *cloud.Config
	app    *app.State
}

var state = &StateManager{}

func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := app.SetupOS(); err != nil {
			return nil, fmt.Errorf("failed to setup os: %w", err)
		}
		config, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState creates the clients and services and starts the background work:
// the Pub/Sub listener and the output retention sweep. Both stop with ctx.
func InitState(ctx context.Context) error {
	config, err := GetConfig()
	if err != nil {
		return err
	}

	appState, err := app.NewState(ctx, config)
	if err != nil {
		return err
	}
	state.app = appState

	retention := workflow.NewOutputRetentionWorkflow(config)
	retention.StartTimer(ctx)

	SetupListeners(ctx)
	return nil
}
