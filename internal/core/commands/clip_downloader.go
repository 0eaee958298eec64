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

// This file defines the fourth step of a style tool: bringing the generated
// clips to local disk.
//
// Logic Flow:
//  1. Each generated video carries inline bytes, a gs:// URI (Vertex AI with
//     an output bucket) or an https:// URI (Gemini API file download).
//  2. Inline bytes are used as is. gs:// objects are streamed from Cloud
//     Storage. HTTP sources are fetched with the API key header when a key
//     is configured.
//  3. The bytes must sniff as video before they are written to
//     clip-<unix-nanos>-<n>.mp4.
//  4. Clips are fetched by a small pool of workers, one span per clip, and
//     put back in generation order.
//  5. A clip that fails any of this is logged and skipped. The step fails
//     only when no clip survives.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const (
	APIKeyHeader           = "x-goog-api-key"
	DefaultDownloadWorkers = 4
)

// ObjectReader is implemented by cloud.ObjectStore.
type ObjectReader interface {
	NewReader(ctx context.Context, obj *cloud.GCSObject) (io.ReadCloser, error)
}

type ClipDownloader struct {
	cor.BaseCommand
	objects    ObjectReader // Nil when Cloud Storage is not configured.
	httpClient *http.Client
	apiKey     string
	workDir    string
	workers    int
}

func NewClipDownloader(name string, objects ObjectReader, httpClient *http.Client, apiKey string, workDir string) *ClipDownloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	out := &ClipDownloader{
		BaseCommand: *cor.NewBaseCommand(name),
		objects:     objects,
		httpClient:  httpClient,
		apiKey:      apiKey,
		workDir:     workDir,
		workers:     DefaultDownloadWorkers,
	}
	out.InputParamName = VideosParam
	out.OutputParamName = ClipsParam
	return out
}

// WithWorkers sets how many clips are downloaded at once. Values below one
// are ignored.
func (d *ClipDownloader) WithWorkers(workers int) *ClipDownloader {
	if workers > 0 {
		d.workers = workers
	}
	return d
}

type clipJob struct {
	index     int
	ctx       context.Context
	span      trace.Span
	generated *genai.GeneratedVideo
}

type clipResult struct {
	clip *model.Clip
	err  error
}

func (d *ClipDownloader) Execute(context cor.Context) {
	videos := context.Get(d.GetInputParam()).([]*genai.GeneratedVideo)

	var wg sync.WaitGroup
	jobs := make(chan *clipJob, len(videos))
	results := make(chan *clipResult, len(videos))

	for w := 0; w < d.workers && w < len(videos); w++ {
		wg.Add(1)
		go d.worker(jobs, results, &wg)
	}
	for i, generated := range videos {
		clipCtx, clipSpan := d.Tracer.Start(context.GetContext(), fmt.Sprintf("%s_clip_%d", d.GetName(), i))
		clipSpan.SetAttributes(attribute.Int("index", i))
		jobs <- &clipJob{index: i, ctx: clipCtx, span: clipSpan, generated: generated}
	}
	close(jobs)
	wg.Wait()
	close(results)

	clips := make([]*model.Clip, 0, len(videos))
	for r := range results {
		if r.err != nil {
			slog.WarnContext(context.GetContext(), "skipping clip", "error", r.err)
			continue
		}
		context.AddTempFile(r.clip.Path)
		clips = append(clips, r.clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Index < clips[j].Index })

	if len(clips) == 0 {
		d.Fail(context, fmt.Errorf("none of the %d generated clips could be downloaded", len(videos)))
		return
	}

	d.Succeed(context)
	context.Add(d.GetOutputParam(), clips)
}

func (d *ClipDownloader) worker(jobs <-chan *clipJob, results chan<- *clipResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		clip, err := d.download(j.ctx, j.index, j.generated)
		if err != nil {
			j.span.SetStatus(codes.Error, err.Error())
		} else {
			j.span.SetStatus(codes.Ok, "downloaded clip")
		}
		j.span.End()
		results <- &clipResult{clip: clip, err: err}
	}
}

func (d *ClipDownloader) download(ctx context.Context, index int, generated *genai.GeneratedVideo) (*model.Clip, error) {
	if generated == nil || generated.Video == nil {
		return nil, fmt.Errorf("clip %d is empty", index)
	}
	video := generated.Video

	var data []byte
	var err error
	switch {
	case len(video.VideoBytes) > 0:
		data = video.VideoBytes
	case strings.HasPrefix(video.URI, cloud.GCSScheme):
		data, err = d.fromGCS(ctx, video.URI)
	case strings.HasPrefix(video.URI, "http://"), strings.HasPrefix(video.URI, "https://"):
		data, err = d.fromHTTP(ctx, video.URI)
	default:
		err = fmt.Errorf("clip %d has no bytes and an unsupported uri %q", index, video.URI)
	}
	if err != nil {
		return nil, err
	}

	if !filetype.IsVideo(data) {
		return nil, fmt.Errorf("clip %d is not a video", index)
	}

	dir := d.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := clipPath(dir, index)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write clip %d: %w", index, err)
	}
	return &model.Clip{Index: index, Path: path, SourceURI: video.URI}, nil
}

func (d *ClipDownloader) fromGCS(ctx context.Context, uri string) ([]byte, error) {
	if d.objects == nil {
		return nil, fmt.Errorf("cannot read %s: cloud storage is not configured", uri)
	}
	obj, err := cloud.ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	reader, err := d.objects.NewReader(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS reader for %s: %w", uri, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func (d *ClipDownloader) fromHTTP(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if d.apiKey != "" {
		req.Header.Set(APIKeyHeader, d.apiKey)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: %s", uri, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// clipPath builds "<dir>/clip-<unix-nanos>-<n>.mp4".
func clipPath(dir string, index int) string {
	name := timestampedName("clip", "mp4")
	return filepath.Join(dir, strings.TrimSuffix(name, ".mp4")+fmt.Sprintf("-%d.mp4", index))
}
