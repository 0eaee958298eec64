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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const VideoMIMEType = "video/mp4"

// ObjectWriter is implemented by cloud.ObjectStore.
type ObjectWriter interface {
	NewWriter(ctx context.Context, obj *cloud.GCSObject) io.WriteCloser
}

// GCSFileUpload publishes the final video to gs://<bucket>/<generation id>.mp4.
// Without a bucket the step is a no-op and the video stays local only.
type GCSFileUpload struct {
	cor.BaseCommand
	objects ObjectWriter
	bucket  string
}

func NewGCSFileUpload(name string, objects ObjectWriter, bucket string) *GCSFileUpload {
	out := &GCSFileUpload{BaseCommand: *cor.NewBaseCommand(name), objects: objects, bucket: bucket}
	out.InputParamName = ResultParam
	return out
}

func (c *GCSFileUpload) Execute(context cor.Context) {
	result := context.Get(c.GetInputParam()).(*model.StitchResult)
	gen, _ := context.Get(GenerationParam).(*model.Generation)

	if c.bucket == "" || c.objects == nil {
		slog.DebugContext(context.GetContext(), "output bucket not configured; skipping upload")
		c.Succeed(context)
		return
	}

	name := filepath.Base(result.VideoPath)
	if gen != nil {
		name = gen.Id + ".mp4"
	}
	obj := &cloud.GCSObject{Bucket: c.bucket, Name: name, MIMEType: VideoMIMEType}

	if err := c.upload(context, result.VideoPath, obj); err != nil {
		c.Fail(context, err)
		return
	}

	if gen != nil {
		gen.VideoUrl = obj.PublicURL()
	}
	slog.InfoContext(context.GetContext(), "uploaded video", "source", result.VideoPath, "destination", obj.URI())
	c.Succeed(context)
}

func (c *GCSFileUpload) upload(context cor.Context, path string, obj *cloud.GCSObject) error {
	dat, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer dat.Close()

	writer := c.objects.NewWriter(context.GetContext(), obj)
	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy to %s after %d bytes: %w", obj.URI(), written, err)
	}
	// The object is only committed on Close.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %s: %w", obj.URI(), err)
	}
	return nil
}
