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
	"fmt"

	"github.com/spf13/cobra"
)

type styleView struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Definition    string `json:"definition"`
	AspectRatio   string `json:"aspect_ratio"`
	NumberOfClips int32  `json:"number_of_clips"`
	ClipSeconds   int32  `json:"clip_seconds"`
	Default       bool   `json:"default,omitempty"`
}

func newStylesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the configured style presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			views := make([]styleView, 0, len(config.Styles))
			for _, key := range config.StyleKeys() {
				s := config.Styles[key]
				views = append(views, styleView{
					Key:           key,
					Name:          s.Name,
					Definition:    s.Definition,
					AspectRatio:   s.AspectRatio,
					NumberOfClips: s.NumberOfClips,
					ClipSeconds:   s.ClipSeconds,
					Default:       key == config.Application.DefaultStyle,
				})
			}
			if asJSON {
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			for _, v := range views {
				marker := " "
				if v.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-14s %-5s %dx%ds  %s\n", marker, v.Key, v.AspectRatio, v.NumberOfClips, v.ClipSeconds, v.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
