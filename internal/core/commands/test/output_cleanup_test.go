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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
)

func newCleanupContext() cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	return chainCtx
}

func TestOutputCleanupRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "video-old.mp4")
	fresh := filepath.Join(dir, "video-new.mp4")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	cmd := commands.NewOutputCleanup("cleanup", dir, 24*time.Hour)
	chainCtx := newCleanupContext()
	require.True(t, cmd.IsExecutable(chainCtx))
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, 1, chainCtx.Get(cor.CtxOut))
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestOutputCleanupMissingDirectory(t *testing.T) {
	cmd := commands.NewOutputCleanup("cleanup", filepath.Join(t.TempDir(), "never-created"), time.Hour)
	chainCtx := newCleanupContext()
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, 0, chainCtx.Get(cor.CtxOut))
}

func TestOutputCleanupDisabled(t *testing.T) {
	cmd := commands.NewOutputCleanup("cleanup", t.TempDir(), 0)
	assert.False(t, cmd.IsExecutable(newCleanupContext()))
}
