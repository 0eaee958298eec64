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

package workflow

import (
	goctx "context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
)

const DefaultRetentionSweepInterval = 15 * time.Minute

// OutputRetentionWorkflow periodically deletes generated files that are
// older than application.output_retention_hours.
type OutputRetentionWorkflow struct {
	cor.BaseCommand
	cleanup  *commands.OutputCleanup
	interval time.Duration
}

func NewOutputRetentionWorkflow(config *cloud.Config) *OutputRetentionWorkflow {
	retention := time.Duration(config.Application.OutputRetentionHours) * time.Hour
	return &OutputRetentionWorkflow{
		BaseCommand: *cor.NewBaseCommand("output-retention"),
		cleanup:     commands.NewOutputCleanup("remove-expired-outputs", config.OutputDir(), retention),
		interval:    DefaultRetentionSweepInterval,
	}
}

func (m *OutputRetentionWorkflow) IsExecutable(context cor.Context) bool {
	return m.cleanup.IsExecutable(context)
}

func (m *OutputRetentionWorkflow) Execute(context cor.Context) {
	m.cleanup.Execute(context)
}

// StartTimer sweeps once per interval until ctx is done. Nothing is started
// when retention is disabled.
func (m *OutputRetentionWorkflow) StartTimer(ctx goctx.Context) {
	probe := cor.NewBaseContext()
	probe.SetContext(ctx)
	if !m.IsExecutable(probe) {
		slog.Info("output retention disabled")
		return
	}

	tracer := otel.Tracer("output-retention")
	ticker := time.NewTicker(m.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := tracer.Start(ctx, "output-retention-sweep")
				chainCtx := cor.NewBaseContext()
				chainCtx.SetContext(traceCtx)

				m.Execute(chainCtx)

				if chainCtx.HasErrors() {
					span.SetStatus(codes.Error, "failed to sweep outputs")
					slog.ErrorContext(traceCtx, "output retention failed", "error", cor.JoinErrors(chainCtx))
				} else {
					span.SetStatus(codes.Ok, "swept outputs")
				}
				span.End()
				chainCtx.Close()
			case <-ctx.Done():
				return
			}
		}
	}()
}
