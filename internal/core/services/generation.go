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

// This file defines the GenerationService, the entry point the HTTP API, the
// CLI and the Pub/Sub listener use to run the generation workflow.
//
// A synchronous run executes the workflow in the caller's goroutine and
// returns the finished record. An asynchronous submission publishes the
// request to Pub/Sub and returns immediately with a queued record; the
// listener later runs the same workflow through AsCommand. Both paths share
// the bookkeeping in finish: progress events, counters, the failure record
// and the in-memory cache of recent generations.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const (
	SignedURLExpiry    = 15 * time.Minute
	GenerationIdAttr   = "generation_id"
	recentGenerations  = 256
	DefaultListLimit   = 20
	MaxListLimit       = 100
	generationRunLabel = "generation-run"
)

var (
	ErrNotFound       = errors.New("generation not found")
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrUnavailable    = errors.New("feature not configured")
)

// PipelineError is returned when the workflow ran and failed. Details holds
// one entry per failed step.
type PipelineError struct {
	Generation *model.Generation
	Details    map[string]string
	Err        error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("generation %s failed: %v", e.Generation.Id, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Publisher is implemented by cloud.PubSubPublisher.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// Stats are the run counters reported by the stats endpoint.
type Stats struct {
	Queued    int64 `json:"queued"`
	Started   int64 `json:"started"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

type GenerationService struct {
	config    *cloud.Config
	workflow  cor.Command
	steps     []string
	publisher Publisher         // Nil disables async submission.
	store     GenerationStore   // Nil limits lookups to the in-memory cache.
	recorder  commands.Inserter // Nil skips recording failed runs.
	signer    URLSigner         // Nil disables streaming URLs.
	progress  *ProgressHub

	queued    atomic.Int64
	started   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	recent map[string]*model.Generation
	order  []string
}

// GenerationServiceOptions carries the optional collaborators.
type GenerationServiceOptions struct {
	Publisher Publisher
	Store     GenerationStore
	Recorder  commands.Inserter
	Signer    URLSigner
	Progress  *ProgressHub
}

// NewGenerationService wires the service. steps are the workflow's command
// names in order, as reported by Steps.
func NewGenerationService(config *cloud.Config, workflow cor.Command, steps []string, opts GenerationServiceOptions) *GenerationService {
	progress := opts.Progress
	if progress == nil {
		progress = NewProgressHub(DefaultProgressHistory)
	}
	return &GenerationService{
		config:    config,
		workflow:  workflow,
		steps:     steps,
		publisher: opts.Publisher,
		store:     opts.Store,
		recorder:  opts.Recorder,
		signer:    opts.Signer,
		progress:  progress,
		recent:    make(map[string]*model.Generation),
	}
}

// Steps returns the pipeline's step names in execution order.
func (s *GenerationService) Steps() []string {
	return s.steps
}

func (s *GenerationService) Progress() *ProgressHub {
	return s.progress
}

func (s *GenerationService) Stats() Stats {
	return Stats{
		Queued:    s.queued.Load(),
		Started:   s.started.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
	}
}

// Styles returns the configured presets keyed by style.
func (s *GenerationService) Styles() map[string]cloud.Style {
	return s.config.Styles
}

func (s *GenerationService) validate(req *model.GenerationRequest) (*model.GenerationRequest, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parsed, err := commands.ParseGenerationRequest(payload, s.config)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parsed.Id = req.Id
	payload, _ = json.Marshal(parsed)
	return parsed, payload, nil
}

// Run executes the workflow synchronously. On failure the returned error is
// a *PipelineError and the record is still returned.
func (s *GenerationService) Run(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	parsed, payload, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	gen := model.NewGeneration(parsed)
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.GenerationParam, gen)
	chainCtx.Add(cor.CtxIn, string(payload))

	s.execute(chainCtx)

	if perr := s.pipelineError(chainCtx, gen); perr != nil {
		return gen, perr
	}
	return gen, nil
}

// Submit queues the request on Pub/Sub and returns the queued record.
func (s *GenerationService) Submit(ctx context.Context, req *model.GenerationRequest) (*model.Generation, error) {
	if s.publisher == nil {
		return nil, fmt.Errorf("%w: no generation topic", ErrUnavailable)
	}
	parsed, _, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	gen := model.NewGeneration(parsed)
	gen.Status = model.StatusQueued
	parsed.Id = gen.Id
	payload, err := json.Marshal(parsed)
	if err != nil {
		return nil, err
	}

	msgId, err := s.publisher.Publish(ctx, payload, map[string]string{GenerationIdAttr: gen.Id})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "generation queued", "id", gen.Id, "message_id", msgId)

	s.queued.Add(1)
	s.remember(gen)
	return gen, nil
}

// AsCommand adapts the service for the Pub/Sub listener: the listener
// provides CtxIn, the service does the rest.
func (s *GenerationService) AsCommand() cor.Command {
	return &generationRun{BaseCommand: *cor.NewBaseCommand(generationRunLabel), service: s}
}

type generationRun struct {
	cor.BaseCommand
	service *GenerationService
}

func (r *generationRun) Execute(context cor.Context) {
	r.service.execute(context)
}

func (s *GenerationService) execute(chainCtx cor.Context) {
	s.started.Add(1)
	announced := false
	announce := func() {
		if announced {
			return
		}
		if gen, ok := chainCtx.Get(commands.GenerationParam).(*model.Generation); ok && gen != nil {
			announced = true
			s.remember(gen)
			s.progress.Publish(model.ProgressEvent{GenerationId: gen.Id, Type: model.EventStarted, Ok: true, Time: time.Now()})
		}
	}
	announce()

	chainCtx.AddListener(func(ctx context.Context, name string, err error) {
		announce()
		gen, ok := chainCtx.Get(commands.GenerationParam).(*model.Generation)
		if !ok || gen == nil {
			return
		}
		event := model.ProgressEvent{GenerationId: gen.Id, Type: model.EventStep, Step: name, Ok: err == nil, Time: time.Now()}
		if err != nil {
			event.Message = err.Error()
		}
		s.progress.Publish(event)
	})

	s.workflow.Execute(chainCtx)
	s.finish(chainCtx)
}

func (s *GenerationService) finish(chainCtx cor.Context) {
	ctx := chainCtx.GetContext()
	gen, ok := chainCtx.Get(commands.GenerationParam).(*model.Generation)
	if !ok || gen == nil {
		// The request never parsed, so there is no record to update.
		s.failed.Add(1)
		slog.ErrorContext(ctx, "generation rejected", "error", cor.JoinErrors(chainCtx))
		return
	}

	if !chainCtx.HasErrors() {
		s.succeeded.Add(1)
		s.remember(gen)
		s.progress.Publish(model.ProgressEvent{GenerationId: gen.Id, Type: model.EventCompleted, Ok: true, Message: gen.VideoPath, Time: time.Now()})
		slog.InfoContext(ctx, "generation completed", "id", gen.Id, "style", gen.Style, "video", gen.VideoPath)
		return
	}

	err := cor.JoinErrors(chainCtx)
	gen.Status = model.StatusFailed
	gen.Error = err.Error()
	s.failed.Add(1)
	s.remember(gen)
	s.progress.Publish(model.ProgressEvent{GenerationId: gen.Id, Type: model.EventFailed, Ok: false, Message: gen.Error, Time: time.Now()})
	slog.ErrorContext(ctx, "generation failed", "id", gen.Id, "error", err)

	if s.recorder != nil {
		// Use a fresh context: the run's context may be the reason it failed.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if rerr := s.recorder.Put(recordCtx, gen); rerr != nil {
			slog.ErrorContext(ctx, "failed to record failed generation", "id", gen.Id, "error", rerr)
		}
	}
}

func (s *GenerationService) pipelineError(chainCtx cor.Context, gen *model.Generation) *PipelineError {
	if !chainCtx.HasErrors() {
		return nil
	}
	details := make(map[string]string)
	for name, err := range chainCtx.GetErrors() {
		details[name] = err.Error()
	}
	return &PipelineError{Generation: gen, Details: details, Err: cor.JoinErrors(chainCtx)}
}

// Get returns a generation from the recent cache or, failing that, the store.
func (s *GenerationService) Get(ctx context.Context, id string) (*model.Generation, error) {
	s.mu.Lock()
	gen, ok := s.recent[id]
	s.mu.Unlock()
	if ok && gen.Status != model.StatusQueued {
		return gen, nil
	}

	if s.store != nil {
		stored, err := s.store.Get(ctx, id)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if ok {
		return gen, nil
	}
	return nil, ErrNotFound
}

// List returns the newest generations, from the store when one is configured.
func (s *GenerationService) List(ctx context.Context, limit int) ([]*model.Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if s.store != nil {
		return s.store.List(ctx, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Generation, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[s.order[i]])
	}
	return out, nil
}

// StreamURL returns a signed URL for the uploaded video of a generation.
func (s *GenerationService) StreamURL(ctx context.Context, id string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("%w: no url signer", ErrUnavailable)
	}
	gen, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if gen.VideoUrl == "" {
		return "", fmt.Errorf("%w: generation %s has no uploaded video", ErrNotFound, id)
	}
	obj, err := ParsePublicURL(gen.VideoUrl)
	if err != nil {
		return "", err
	}
	return s.signer.SignedURL(ctx, obj, SignedURLExpiry)
}

// remember caches a snapshot; the pipeline keeps mutating the live record.
func (s *GenerationService) remember(gen *model.Generation) {
	snapshot := *gen
	snapshot.ClipPaths = append([]string(nil), gen.ClipPaths...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recent[gen.Id]; !ok {
		s.order = append(s.order, gen.Id)
	}
	s.recent[gen.Id] = &snapshot
	for len(s.order) > recentGenerations {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
}
