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
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

type bufferWriter struct {
	bytes.Buffer
	closed bool
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return nil
}

// recordingObjects keeps everything written to it in memory.
type recordingObjects struct {
	writes map[string]*bufferWriter
	types  map[string]string
}

func (r *recordingObjects) NewWriter(ctx context.Context, obj *cloud.GCSObject) io.WriteCloser {
	if r.writes == nil {
		r.writes = make(map[string]*bufferWriter)
		r.types = make(map[string]string)
	}
	w := &bufferWriter{}
	r.writes[obj.URI()] = w
	r.types[obj.URI()] = obj.MIMEType
	return w
}

func stitched(t *testing.T) *model.StitchResult {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video-1.mp4")
	require.NoError(t, os.WriteFile(path, test.MP4Bytes, 0o644))
	return &model.StitchResult{VideoPath: path, ClipPaths: []string{path}}
}

func TestGCSFileUploadSkipsWithoutBucket(t *testing.T) {
	objects := &recordingObjects{}
	cmd := commands.NewGCSFileUpload("publish", objects, "")

	chainCtx, gen := newChainContext(t, "x", "")
	chainCtx.Add(commands.ResultParam, stitched(t))
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Empty(t, objects.writes)
	assert.Empty(t, gen.VideoUrl)
}

func TestGCSFileUploadWritesVideo(t *testing.T) {
	objects := &recordingObjects{}
	cmd := commands.NewGCSFileUpload("publish", objects, "clip-output")

	chainCtx, gen := newChainContext(t, "x", "")
	chainCtx.Add(commands.ResultParam, stitched(t))
	require.True(t, cmd.IsExecutable(chainCtx))
	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	uri := "gs://clip-output/" + gen.Id + ".mp4"
	require.Contains(t, objects.writes, uri)
	assert.Equal(t, test.MP4Bytes, objects.writes[uri].Bytes())
	assert.True(t, objects.writes[uri].closed)
	assert.Equal(t, commands.VideoMIMEType, objects.types[uri])
	assert.Equal(t, "https://storage.mtls.cloud.google.com/clip-output/"+gen.Id+".mp4", gen.VideoUrl)
}

func TestGCSFileUploadMissingFile(t *testing.T) {
	cmd := commands.NewGCSFileUpload("publish", &recordingObjects{}, "clip-output")

	chainCtx, _ := newChainContext(t, "x", "")
	chainCtx.Add(commands.ResultParam, &model.StitchResult{VideoPath: filepath.Join(t.TempDir(), "missing.mp4")})
	cmd.Execute(chainCtx)
	assert.True(t, chainCtx.HasErrors())
}

func TestPersistMarksSuccess(t *testing.T) {
	inserter := &test.FakeInserter{}
	cmd := commands.NewGenerationPersistToBigQuery("persist", inserter)

	chainCtx, gen := newChainContext(t, "x", "")
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, model.StatusSucceeded, gen.Status)
	rows := inserter.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, gen.Id, rows[0].Id)
	assert.Equal(t, model.StatusSucceeded, rows[0].Status)
}

func TestPersistWithoutInserter(t *testing.T) {
	cmd := commands.NewGenerationPersistToBigQuery("persist", nil)

	chainCtx, gen := newChainContext(t, "x", "")
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	assert.Equal(t, model.StatusSucceeded, gen.Status)
}

func TestPersistFailure(t *testing.T) {
	cmd := commands.NewGenerationPersistToBigQuery("persist", &test.FakeInserter{Err: errors.New("table not found")})

	chainCtx, gen := newChainContext(t, "x", "")
	cmd.Execute(chainCtx)

	assert.True(t, chainCtx.HasErrors())
	assert.Equal(t, model.StatusFailed, gen.Status)
}
