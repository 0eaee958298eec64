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

package cor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// BaseContext is the default Context. It is not safe for concurrent use; a
// chain runs its commands one after another.
type BaseContext struct {
	data      map[string]interface{} // Arbitrary step data.
	errors    map[string]error       // Errors keyed by the command that produced them.
	tempFiles []string               // Files removed by Close.
	listeners []StepListener         // Called by the chain after every step.
	context   context.Context        // Cancellation and trace propagation.
}

// NewBaseContext returns an empty context. Callers must SetContext before
// running a chain; BaseChain.IsExecutable rejects a nil Go context.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes every tracked temp file. A file that is already gone is not
// an error: the stitcher moves files it wants to keep out of the temp set.
func (c *BaseContext) Close() {
	for _, file := range c.GetTempFiles() {
		err := os.Remove(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
	c.tempFiles = c.tempFiles[:0]
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

func (c *BaseContext) AddListener(listener StepListener) {
	if listener != nil {
		c.listeners = append(c.listeners, listener)
	}
}

func (c *BaseContext) GetListeners() []StepListener {
	return c.listeners
}

func (c *BaseContext) AddError(key string, err error) {
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

// JoinErrors flattens the errors of a context into a single error, ordered by
// command name so the message is stable. It returns nil when there are none.
func JoinErrors(context Context) error {
	errs := context.GetErrors()
	if len(errs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]error, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Errorf("%s: %w", k, errs[k]))
	}
	return errors.Join(out...)
}
