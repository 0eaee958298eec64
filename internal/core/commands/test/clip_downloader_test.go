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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

// memoryObjects serves objects from a map keyed by gs:// uri.
type memoryObjects map[string][]byte

func (m memoryObjects) NewReader(ctx context.Context, obj *cloud.GCSObject) (io.ReadCloser, error) {
	data, ok := m[obj.URI()]
	if !ok {
		return nil, fmt.Errorf("object %s not found", obj.URI())
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestClipDownloaderFetchesEverySource(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(commands.APIKeyHeader)
		_, _ = w.Write(test.MP4Bytes)
	}))
	defer server.Close()

	objects := memoryObjects{"gs://scratch/veo/clip-1.mp4": test.MP4Bytes}
	dir := t.TempDir()
	cmd := commands.NewClipDownloader("download", objects, server.Client(), "secret", dir)

	chainCtx, _ := newChainContext(t, "x", "")
	chainCtx.Add(commands.VideosParam, []*genai.GeneratedVideo{
		{Video: &genai.Video{VideoBytes: test.MP4Bytes}},
		{Video: &genai.Video{URI: "gs://scratch/veo/clip-1.mp4"}},
		{Video: &genai.Video{URI: server.URL + "/files/clip-2.mp4"}},
	})

	require.True(t, cmd.IsExecutable(chainCtx))
	cmd.Execute(chainCtx)
	require.False(t, chainCtx.HasErrors())

	clips := chainCtx.Get(commands.ClipsParam).([]*model.Clip)
	require.Len(t, clips, 3)
	for i, clip := range clips {
		assert.Equal(t, i, clip.Index)
		data, err := os.ReadFile(clip.Path)
		require.NoError(t, err)
		assert.Equal(t, test.MP4Bytes, data)
		assert.Contains(t, chainCtx.GetTempFiles(), clip.Path)
	}
	assert.Equal(t, "gs://scratch/veo/clip-1.mp4", clips[1].SourceURI)
	assert.Equal(t, "secret", gotKey)
}

func TestClipDownloaderSkipsFailedClips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	cmd := commands.NewClipDownloader("download", nil, server.Client(), "", t.TempDir())

	chainCtx, _ := newChainContext(t, "x", "")
	chainCtx.Add(commands.VideosParam, []*genai.GeneratedVideo{
		{Video: &genai.Video{URI: server.URL + "/missing.mp4"}},
		{Video: &genai.Video{URI: "gs://scratch/no-storage-client.mp4"}},
		{Video: &genai.Video{VideoBytes: []byte("not a video at all")}},
		nil,
		{Video: &genai.Video{VideoBytes: test.MP4Bytes}},
	})
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	clips := chainCtx.Get(commands.ClipsParam).([]*model.Clip)
	require.Len(t, clips, 1)
	assert.Equal(t, 4, clips[0].Index)
}

func TestClipDownloaderFailsWhenNothingDownloads(t *testing.T) {
	cmd := commands.NewClipDownloader("download", nil, nil, "", t.TempDir())

	chainCtx, _ := newChainContext(t, "x", "")
	chainCtx.Add(commands.VideosParam, []*genai.GeneratedVideo{
		{Video: &genai.Video{URI: "ftp://example.com/clip.mp4"}},
	})
	cmd.Execute(chainCtx)

	assert.True(t, chainCtx.HasErrors())
	assert.Nil(t, chainCtx.Get(commands.ClipsParam))
}

func TestClipDownloaderKeepsGenerationOrder(t *testing.T) {
	cmd := commands.NewClipDownloader("download", nil, nil, "", t.TempDir()).WithWorkers(3)

	videos := make([]*genai.GeneratedVideo, 0, 6)
	for i := 0; i < 6; i++ {
		videos = append(videos, &genai.GeneratedVideo{Video: &genai.Video{VideoBytes: test.MP4Bytes}})
	}
	chainCtx, _ := newChainContext(t, "x", "")
	chainCtx.Add(commands.VideosParam, videos)
	cmd.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	clips := chainCtx.Get(commands.ClipsParam).([]*model.Clip)
	require.Len(t, clips, 6)
	seen := make(map[string]bool)
	for i, clip := range clips {
		assert.Equal(t, i, clip.Index)
		assert.False(t, seen[clip.Path], "clip paths are unique")
		seen[clip.Path] = true
	}
}
