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

// This file defines the second step of a style tool: rendering the still
// frame that the video model animates.
//
// Logic Flow:
//  1. The image model is asked for exactly one image for the narration's
//     image prompt, in the style's aspect ratio.
//  2. An empty response, or an image dropped by the safety filter, fails
//     the step.
//  3. The bytes are sniffed with filetype; the extension comes from the
//     detected type, falling back to the reported MIME type.
//  4. The image is written to the work directory as image-<unix-nanos>.<ext>
//     and registered as a temp file. The stitcher later moves it to the
//     output directory.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// ImageGenerator is implemented by cloud.QuotaAwareImageModel.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

type ImageGeneratorCommand struct {
	cor.BaseCommand
	model   ImageGenerator
	workDir string // Where the temp image is written; os.TempDir() when empty.
}

func NewImageGeneratorCommand(name string, model ImageGenerator, workDir string) *ImageGeneratorCommand {
	out := &ImageGeneratorCommand{
		BaseCommand: *cor.NewBaseCommand(name),
		model:       model,
		workDir:     workDir,
	}
	out.InputParamName = NarrationParam
	out.OutputParamName = ImageParam
	return out
}

func (c *ImageGeneratorCommand) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(StyleParam) != nil
}

func (c *ImageGeneratorCommand) Execute(context cor.Context) {
	narration := context.Get(c.GetInputParam()).(*model.Narration)
	style := context.Get(StyleParam).(*cloud.Style)

	resp, err := c.model.GenerateImages(context.GetContext(), narration.ImagePrompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    style.AspectRatio,
	})
	if err != nil {
		c.Fail(context, fmt.Errorf("image generation failed: %w", err))
		return
	}
	image, err := firstImage(resp)
	if err != nil {
		c.Fail(context, err)
		return
	}

	path := filepath.Join(c.dir(), timestampedName("image", imageExtension(image)))
	if err := os.WriteFile(path, image.ImageBytes, 0o644); err != nil {
		c.Fail(context, fmt.Errorf("failed to write image %s: %w", path, err))
		return
	}
	slog.InfoContext(context.GetContext(), "image generated", "path", path, "bytes", len(image.ImageBytes))

	c.Succeed(context)
	context.AddTempFile(path)
	context.Add(ImagePathParam, path)
	context.Add(c.GetOutputParam(), image)
}

func (c *ImageGeneratorCommand) dir() string {
	if c.workDir == "" {
		return os.TempDir()
	}
	return c.workDir
}

func firstImage(resp *genai.GenerateImagesResponse) (*genai.Image, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return nil, fmt.Errorf("image model returned no images")
	}
	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		if generated.RAIFilteredReason != "" {
			return nil, fmt.Errorf("image removed by safety filter: %s", generated.RAIFilteredReason)
		}
		return nil, fmt.Errorf("image model returned an empty image")
	}
	if !filetype.IsImage(generated.Image.ImageBytes) {
		return nil, fmt.Errorf("image model returned bytes that are not an image")
	}
	return generated.Image, nil
}

func imageExtension(image *genai.Image) string {
	if kind, err := filetype.Match(image.ImageBytes); err == nil && kind != filetype.Unknown {
		return kind.Extension
	}
	switch strings.ToLower(image.MIMEType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
