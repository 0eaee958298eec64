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

package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/app"
	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
)

func TestSetupOSDefaults(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")

	require.NoError(t, app.SetupOS(filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, app.DefaultConfigDir, os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, app.DefaultRuntime, os.Getenv(cloud.EnvConfigRuntime))
}

func TestSetupOSReadsEnvFile(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")
	t.Cleanup(func() { _ = os.Unsetenv("CLIP_STUDIO_MARKER") })
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLIP_STUDIO_MARKER=from-file\nGCP_RUNTIME=prod\n"), 0o644))

	require.NoError(t, app.SetupOS(envFile))
	assert.Equal(t, "from-file", os.Getenv("CLIP_STUDIO_MARKER"))
	// Variables already present in the environment win over the file.
	assert.Equal(t, app.DefaultRuntime, os.Getenv(cloud.EnvConfigRuntime))
}

func TestLoadConfigFromRepository(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, filepath.Join("..", "..", "..", "configs"))
	t.Setenv(cloud.EnvConfigRuntime, "local")

	config, err := app.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gemini", config.Application.Backend)
	assert.Equal(t, "cinematic", config.Application.DefaultStyle)
	assert.ElementsMatch(t, []string{"high-energy", "advertisement", "cinematic"}, config.StyleKeys())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[application]\nname = \"x\"\n"), 0o644))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	_, err := app.LoadConfig()
	assert.ErrorContains(t, err, "invalid configuration")
}
