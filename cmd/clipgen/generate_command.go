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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-studio/internal/app"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-studio/internal/telemetry"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var prompt string
	var style string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the pipeline once and print the generation record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				config.Application.OutputDir = outputDir
			}

			closeLog, err := telemetry.SetupLogging(config)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.SetupOpenTelemetry(runCtx, config)
			if err != nil {
				return fmt.Errorf("failed to setup OpenTelemetry: %w", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			state, err := app.NewState(runCtx, config)
			if err != nil {
				return err
			}
			defer state.Close()

			gen, err := state.Generation.Run(runCtx, &model.GenerationRequest{Prompt: prompt, Style: style})
			var pipelineErr *services.PipelineError
			if errors.As(err, &pipelineErr) {
				// Print the partial record so the failing step is visible.
				if werr := writeJSON(cmd, pipelineErr.Generation); werr != nil {
					return werr
				}
				return err
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd, gen)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "What the clip should be about")
	cmd.Flags().StringVarP(&style, "style", "s", "", "Style key; the router picks one when empty")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Overrides application.output_dir")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
