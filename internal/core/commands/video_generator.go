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

// This file defines the third step of a style tool: animating the still frame
// with the text-to-video model.
//
// Video generation is a long-running operation. The command starts it, then
// re-reads the operation at a fixed interval until it reports Done. The wait
// is bounded by the configured timeout and ends early when the run's context
// is cancelled.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

var ErrVideoTimeout = errors.New("timed out waiting for video generation")

// VideoGenerator is implemented by cloud.QuotaAwareVideoModel.
type VideoGenerator interface {
	GenerateVideos(ctx context.Context, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

type VideoGeneratorCommand struct {
	cor.BaseCommand
	model       VideoGenerator
	interval    time.Duration
	timeout     time.Duration
	pollCounter metric.Int64Counter
}

func NewVideoGeneratorCommand(name string, model VideoGenerator, polling cloud.Polling) *VideoGeneratorCommand {
	out := &VideoGeneratorCommand{
		BaseCommand: *cor.NewBaseCommand(name),
		model:       model,
		interval:    polling.Interval(),
		timeout:     polling.Timeout(),
	}
	out.InputParamName = ImageParam
	out.OutputParamName = VideosParam
	out.pollCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.poll", out.GetName()))
	return out
}

// WithPolling overrides the poll interval and timeout.
func (c *VideoGeneratorCommand) WithPolling(interval time.Duration, timeout time.Duration) *VideoGeneratorCommand {
	c.interval = interval
	c.timeout = timeout
	return c
}

func (c *VideoGeneratorCommand) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(NarrationParam) != nil && context.Get(StyleParam) != nil
}

func (c *VideoGeneratorCommand) Execute(context cor.Context) {
	image := context.Get(c.GetInputParam()).(*genai.Image)
	narration := context.Get(NarrationParam).(*model.Narration)
	style := context.Get(StyleParam).(*cloud.Style)

	config := &genai.GenerateVideosConfig{
		NumberOfVideos: style.NumberOfClips,
		AspectRatio:    style.AspectRatio,
	}
	if style.ClipSeconds > 0 {
		config.DurationSeconds = genai.Ptr[int32](style.ClipSeconds)
	}

	op, err := c.model.GenerateVideos(context.GetContext(), narration.VideoPrompt, image, config)
	if err != nil {
		c.Fail(context, fmt.Errorf("video generation failed to start: %w", err))
		return
	}

	op, err = c.wait(context.GetContext(), op)
	if err != nil {
		c.Fail(context, err)
		return
	}

	videos, err := generatedVideos(op)
	if err != nil {
		c.Fail(context, err)
		return
	}
	slog.InfoContext(context.GetContext(), "video generation finished", "operation", op.Name, "videos", len(videos))

	c.Succeed(context)
	context.Add(c.GetOutputParam(), videos)
}

// wait polls op until it is done, the timeout passes or ctx ends.
func (c *VideoGeneratorCommand) wait(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	stopped := func(name string) error {
		if ctx.Err() != nil {
			return fmt.Errorf("video generation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w after %s (operation %s)", ErrVideoTimeout, c.timeout, name)
	}

	for op != nil && !op.Done {
		select {
		case <-pollCtx.Done():
			return nil, stopped(op.Name)
		case <-ticker.C:
		}

		if c.pollCounter != nil {
			c.pollCounter.Add(ctx, 1)
		}
		slog.DebugContext(ctx, "polling video operation", "operation", op.Name)
		next, err := c.model.GetVideosOperation(pollCtx, op)
		if err != nil {
			// The deadline may have fired while the poll was in flight.
			if pollCtx.Err() != nil {
				return nil, stopped(op.Name)
			}
			return nil, fmt.Errorf("failed to poll video operation: %w", err)
		}
		op = next
	}
	if op == nil {
		return nil, fmt.Errorf("video model returned no operation")
	}
	return op, nil
}

func generatedVideos(op *genai.GenerateVideosOperation) ([]*genai.GeneratedVideo, error) {
	if len(op.Error) > 0 {
		return nil, fmt.Errorf("video operation %s failed: %v", op.Name, op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
			return nil, fmt.Errorf("videos removed by safety filter: %v", op.Response.RAIMediaFilteredReasons)
		}
		return nil, fmt.Errorf("video operation %s returned no videos", op.Name)
	}
	return op.Response.GeneratedVideos, nil
}
