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
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-studio/internal/app"
	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
)

type commandContext struct {
	envFile *string
	config  *cloud.Config
}

func (c *commandContext) ensureConfig() (*cloud.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	var files []string
	if c.envFile != nil && *c.envFile != "" {
		files = append(files, *c.envFile)
	}
	if err := app.SetupOS(files...); err != nil {
		return nil, err
	}
	config, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	c.config = config
	return config, nil
}

func newRootCommand() *cobra.Command {
	var envFlag string
	ctx := &commandContext{envFile: &envFlag}

	rootCmd := &cobra.Command{
		Use:           "clipgen",
		Short:         "Generate short narrated video clips from a prompt",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", "", "Path to a .env file loaded before the configuration")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newStylesCommand(ctx))
	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
