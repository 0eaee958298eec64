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

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
)

// OutputCleanup removes regular files in the output directory whose
// modification time is older than the retention window. The number of
// removed files is written to CtxOut.
type OutputCleanup struct {
	cor.BaseCommand
	outputDir string
	retention time.Duration
	now       func() time.Time
}

func NewOutputCleanup(name string, outputDir string, retention time.Duration) *OutputCleanup {
	return &OutputCleanup{
		BaseCommand: *cor.NewBaseCommand(name),
		outputDir:   outputDir,
		retention:   retention,
		now:         time.Now,
	}
}

// IsExecutable needs no input; a positive retention is enough.
func (v *OutputCleanup) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && v.retention > 0
}

func (v *OutputCleanup) Execute(context cor.Context) {
	entries, err := os.ReadDir(v.outputDir)
	if os.IsNotExist(err) {
		v.Succeed(context)
		context.Add(cor.CtxOut, 0)
		return
	}
	if err != nil {
		v.Fail(context, fmt.Errorf("failed to list %s: %w", v.outputDir, err))
		return
	}

	cutoff := v.now().Add(-v.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(v.outputDir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.WarnContext(context.GetContext(), "failed to remove expired output", "file", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.InfoContext(context.GetContext(), "removed expired outputs", "dir", v.outputDir, "count", removed)
	}

	v.Succeed(context)
	context.Add(cor.CtxOut, removed)
}
