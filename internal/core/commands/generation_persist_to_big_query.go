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
	"log/slog"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// Inserter is the streaming insert call of *bigquery.Inserter.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// GenerationPersistToBigQuery marks the generation as succeeded and streams
// the record into BigQuery. A nil inserter only updates the status.
type GenerationPersistToBigQuery struct {
	cor.BaseCommand
	inserter Inserter
}

func NewGenerationPersistToBigQuery(name string, inserter Inserter) *GenerationPersistToBigQuery {
	out := &GenerationPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter}
	out.InputParamName = GenerationParam
	return out
}

func (s *GenerationPersistToBigQuery) Execute(context cor.Context) {
	gen := context.Get(s.GetInputParam()).(*model.Generation)
	gen.Status = model.StatusSucceeded

	if s.inserter != nil {
		if err := s.inserter.Put(context.GetContext(), gen); err != nil {
			gen.Status = model.StatusFailed
			s.Fail(context, fmt.Errorf("bigquery insert failed for generation %s: %w", gen.Id, err))
			return
		}
		slog.InfoContext(context.GetContext(), "persisted generation", "id", gen.Id)
	}

	s.Succeed(context)
	context.Add(cor.CtxOut, gen)
}
