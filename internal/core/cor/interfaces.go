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

// Package cor (Chain of Responsibility) provides the building blocks the
// generation pipeline is assembled from. A Chain runs a list of Commands in
// order against a shared Context; the output of one command becomes the input
// of the next.
//
// The interfaces in this file are the contract every step of the
// prompt-to-video pipeline implements:
//   - Context: the per-run state bag (inputs, outputs, errors, temp files and
//     step listeners).
//   - Command: a single unit of work with its own tracing and metrics.
//   - Chain: an ordered group of commands that is itself a Command.
package cor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn is the default key for the primary input of a command. The BaseChain
	// populates it with the output of the previous command.
	CtxIn = "__IN__"
	// CtxOut is the default key where a command places its primary output.
	CtxOut = "__OUT__"
)

// ErrInvalidInput marks a failure caused by input that can never be
// processed. Commands wrap it; message listeners drop such input instead of
// retrying it.
var ErrInvalidInput = errors.New("invalid input")

// StepListener is notified after every command a chain runs. err is the error
// the command recorded, or nil when the command succeeded.
type StepListener func(ctx context.Context, commandName string, err error)

// Context is the state shared by every command of one chain execution.
type Context interface {
	// SetContext sets the standard Go `context.Context` used for cancellation
	// and trace propagation.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go `context.Context`.
	GetContext() context.Context

	// Add stores a key-value pair. It returns the Context for fluent use.
	Add(key string, value interface{}) Context

	// AddError records an error produced by the named command.
	AddError(key string, err error)

	// GetErrors returns every error recorded so far, keyed by command name.
	GetErrors() map[string]error

	// Get retrieves a value by key, or nil.
	Get(key string) interface{}

	// Remove deletes a key.
	Remove(key string)

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// AddTempFile tracks a file that must be deleted when the run closes.
	AddTempFile(file string)

	// GetTempFiles returns the tracked temp files.
	GetTempFiles() []string

	// AddListener registers a listener that the chain calls after each step.
	AddListener(listener StepListener)

	// GetListeners returns the registered step listeners.
	GetListeners() []StepListener

	// Close removes the tracked temp files. Defer it right after creating
	// the context.
	Close()
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single named pipeline step.
type Command interface {
	Executable

	// GetName returns the unique name of the command, used for logs, spans and
	// metric names.
	GetName() string

	// GetInputParam returns the context key holding the command's input.
	GetInputParam() string

	// GetOutputParam returns the context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands that is itself a command.
type Chain interface {
	Command

	// ContinueOnFailure controls whether the chain keeps running after a
	// command records an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the chain.
	AddCommand(command Command) Chain
}
