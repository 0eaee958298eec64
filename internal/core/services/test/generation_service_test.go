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

package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/services"
	test "github.com/jaycherian/gcp-go-clip-studio/internal/testutil"
)

const videoURL = "https://storage.mtls.cloud.google.com/clips/videos/g.mp4"

// scriptedStep stands in for a pipeline step. It fails with err when set,
// otherwise it marks the generation as published.
type scriptedStep struct {
	cor.BaseCommand
	err error
}

func (s *scriptedStep) Execute(context cor.Context) {
	if s.err != nil {
		s.Fail(context, s.err)
		return
	}
	gen := context.Get(commands.GenerationParam).(*model.Generation)
	gen.Style = "cinematic"
	gen.VideoPath = "output/" + gen.Id + ".mp4"
	gen.VideoUrl = videoURL
	gen.Status = model.StatusSucceeded
	s.Succeed(context)
}

// newScriptedStep reads the generation record rather than CtxIn: the chain
// clears CtxIn after a step that writes no output.
func newScriptedStep(name string, err error) *scriptedStep {
	step := &scriptedStep{BaseCommand: *cor.NewBaseCommand(name), err: err}
	step.InputParamName = commands.GenerationParam
	return step
}

func newScriptedWorkflow(failWith error) *cor.BaseChain {
	chain := cor.NewBaseChain("scripted")
	chain.AddCommand(newScriptedStep("narration", nil))
	chain.AddCommand(newScriptedStep("video-generator", failWith))
	return chain
}

type fakeSigner struct {
	objects []*cloud.GCSObject
}

func (f *fakeSigner) SignedURL(ctx context.Context, obj *cloud.GCSObject, expires time.Duration) (string, error) {
	f.objects = append(f.objects, obj)
	return "https://signed.example/" + obj.Name, nil
}

func newService(failWith error, opts services.GenerationServiceOptions) *services.GenerationService {
	wf := newScriptedWorkflow(failWith)
	return services.NewGenerationService(test.GetConfig(), wf, wf.Commands(), opts)
}

func TestRunSucceeds(t *testing.T) {
	svc := newService(nil, services.GenerationServiceOptions{})

	gen, err := svc.Run(context.Background(), &model.GenerationRequest{Prompt: "  a lighthouse in a storm  "})
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse in a storm", gen.Prompt)
	assert.Equal(t, model.StatusSucceeded, gen.Status)
	assert.Equal(t, services.Stats{Started: 1, Succeeded: 1}, svc.Stats())
	assert.Equal(t, []string{"narration", "video-generator"}, svc.Steps())

	history := svc.Progress().History(gen.Id)
	require.Len(t, history, 4)
	assert.Equal(t, model.EventStarted, history[0].Type)
	assert.Equal(t, "narration", history[1].Step)
	assert.Equal(t, "video-generator", history[2].Step)
	assert.Equal(t, model.EventCompleted, history[3].Type)

	cached, err := svc.Get(context.Background(), gen.Id)
	require.NoError(t, err)
	assert.Equal(t, gen.VideoPath, cached.VideoPath)
}

func TestRunFailureReturnsPipelineError(t *testing.T) {
	recorder := &test.FakeInserter{}
	svc := newService(errors.New("quota exhausted"), services.GenerationServiceOptions{Recorder: recorder})

	gen, err := svc.Run(context.Background(), &model.GenerationRequest{Prompt: "x", Style: "advertisement"})
	require.Error(t, err)
	require.NotNil(t, gen)

	var perr *services.PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, gen.Id, perr.Generation.Id)
	assert.Equal(t, map[string]string{"video-generator": "quota exhausted"}, perr.Details)
	assert.Equal(t, model.StatusFailed, gen.Status)
	assert.Contains(t, gen.Error, "quota exhausted")
	assert.Equal(t, services.Stats{Started: 1, Failed: 1}, svc.Stats())

	rows := recorder.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, gen.Id, rows[0].Id)
	assert.Equal(t, model.StatusFailed, rows[0].Status)

	history := svc.Progress().History(gen.Id)
	last := history[len(history)-1]
	assert.Equal(t, model.EventFailed, last.Type)
	assert.False(t, last.Ok)
}

func TestRunRejectsInvalidRequests(t *testing.T) {
	svc := newService(nil, services.GenerationServiceOptions{})

	for name, req := range map[string]*model.GenerationRequest{
		"empty prompt":  {Prompt: "   "},
		"unknown style": {Prompt: "x", Style: "noir"},
	} {
		t.Run(name, func(t *testing.T) {
			gen, err := svc.Run(context.Background(), req)
			assert.Nil(t, gen)
			assert.ErrorIs(t, err, services.ErrInvalidRequest)
		})
	}
	assert.Equal(t, services.Stats{}, svc.Stats())
}

func TestSubmit(t *testing.T) {
	t.Run("without publisher", func(t *testing.T) {
		svc := newService(nil, services.GenerationServiceOptions{})
		_, err := svc.Submit(context.Background(), &model.GenerationRequest{Prompt: "x"})
		assert.ErrorIs(t, err, services.ErrUnavailable)
	})

	t.Run("queued", func(t *testing.T) {
		publisher := &test.FakePublisher{}
		svc := newService(nil, services.GenerationServiceOptions{Publisher: publisher})

		gen, err := svc.Submit(context.Background(), &model.GenerationRequest{Prompt: "a kite", Style: "cinematic"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusQueued, gen.Status)
		assert.Equal(t, int64(1), svc.Stats().Queued)

		require.Len(t, publisher.Messages, 1)
		msg := publisher.Messages[0]
		assert.Equal(t, gen.Id, msg.Attributes[services.GenerationIdAttr])
		var req model.GenerationRequest
		require.NoError(t, json.Unmarshal(msg.Data, &req))
		assert.Equal(t, model.GenerationRequest{Id: gen.Id, Prompt: "a kite", Style: "cinematic"}, req)

		queued, err := svc.Get(context.Background(), gen.Id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusQueued, queued.Status)
	})

	t.Run("publish failure", func(t *testing.T) {
		publisher := &test.FakePublisher{Err: errors.New("topic gone")}
		svc := newService(nil, services.GenerationServiceOptions{Publisher: publisher})
		_, err := svc.Submit(context.Background(), &model.GenerationRequest{Prompt: "x"})
		assert.EqualError(t, err, "topic gone")
		assert.Equal(t, int64(0), svc.Stats().Queued)
	})
}

func TestAsCommandRunsQueuedRequest(t *testing.T) {
	svc := newService(nil, services.GenerationServiceOptions{})

	// The listener hands the raw message to the command; the trigger reader
	// would normally open the record, so do it here.
	gen := model.NewGeneration(&model.GenerationRequest{Id: "queued-7", Prompt: "x"})
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, `{"id":"queued-7","prompt":"x"}`)
	chainCtx.Add(commands.GenerationParam, gen)

	cmd := svc.AsCommand()
	require.True(t, cmd.IsExecutable(chainCtx))
	cmd.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	stored, err := svc.Get(context.Background(), "queued-7")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, stored.Status)
	assert.Equal(t, services.Stats{Started: 1, Succeeded: 1}, svc.Stats())
}

func TestGetUnknown(t *testing.T) {
	svc := newService(nil, services.GenerationServiceOptions{})
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	svc := newService(nil, services.GenerationServiceOptions{})
	var ids []string
	for _, prompt := range []string{"one", "two", "three"} {
		gen, err := svc.Run(context.Background(), &model.GenerationRequest{Prompt: prompt})
		require.NoError(t, err)
		ids = append(ids, gen.Id)
	}

	all, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].Id)
	assert.Equal(t, ids[0], all[2].Id)

	two, err := svc.List(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStreamURL(t *testing.T) {
	t.Run("without signer", func(t *testing.T) {
		svc := newService(nil, services.GenerationServiceOptions{})
		_, err := svc.StreamURL(context.Background(), "any")
		assert.ErrorIs(t, err, services.ErrUnavailable)
	})

	t.Run("signed", func(t *testing.T) {
		signer := &fakeSigner{}
		svc := newService(nil, services.GenerationServiceOptions{Signer: signer})
		gen, err := svc.Run(context.Background(), &model.GenerationRequest{Prompt: "x"})
		require.NoError(t, err)

		url, err := svc.StreamURL(context.Background(), gen.Id)
		require.NoError(t, err)
		assert.Equal(t, "https://signed.example/videos/g.mp4", url)
		require.Len(t, signer.objects, 1)
		assert.Equal(t, "clips", signer.objects[0].Bucket)
	})
}

func TestParsePublicURL(t *testing.T) {
	obj, err := services.ParsePublicURL(videoURL)
	require.NoError(t, err)
	assert.Equal(t, "clips", obj.Bucket)
	assert.Equal(t, "videos/g.mp4", obj.Name)
	assert.Equal(t, videoURL, obj.PublicURL())

	for _, bad := range []string{"gs://clips/a.mp4", "https://storage.mtls.cloud.google.com/clips", "https://storage.mtls.cloud.google.com//a"} {
		_, err := services.ParsePublicURL(bad)
		assert.Error(t, err, bad)
	}
}
