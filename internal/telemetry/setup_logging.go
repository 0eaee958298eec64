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

// Package telemetry provides the setup for logging, tracing and metrics. This
// file configures structured JSON logging that Cloud Logging understands and
// that carries the OpenTelemetry trace of the request being logged.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
)

// spanContextLogHandler wraps another handler and adds the trace and span
// ids of the record's context, so Cloud Logging can correlate logs and traces.
type spanContextLogHandler struct {
	slog.Handler
	projectID string
}

func handlerWithSpanContext(handler slog.Handler, projectID string) *spanContextLogHandler {
	return &spanContextLogHandler{Handler: handler, projectID: projectID}
}

func (t *spanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		traceID := s.TraceID().String()
		if t.projectID != "" {
			traceID = fmt.Sprintf("projects/%s/traces/%s", t.projectID, traceID)
		}
		record.AddAttrs(
			slog.String("logging.googleapis.com/trace", traceID),
			slog.String("logging.googleapis.com/spanId", s.SpanID().String()),
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return t.Handler.Handle(ctx, record)
}

func (t *spanContextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handlerWithSpanContext(t.Handler.WithAttrs(attrs), t.projectID)
}

func (t *spanContextLogHandler) WithGroup(name string) slog.Handler {
	return handlerWithSpanContext(t.Handler.WithGroup(name), t.projectID)
}

// replacer renames slog's keys to the ones Cloud Logging expects.
func replacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		if level, ok := a.Value.Any().(slog.Level); ok && level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// SetupLogging installs the JSON handler as the slog default and points the
// standard logger at the same writer. Logs go to stdout and, when
// telemetry.log_file is set, to that file as well. The returned function
// closes the file.
func SetupLogging(config *cloud.Config) (closeLog func() error, err error) {
	var writer io.Writer = os.Stdout
	closeLog = func() error { return nil }
	projectID := ""

	if config != nil {
		projectID = config.Application.GoogleProjectId
		if config.Telemetry.LogFile != "" {
			file, err := os.OpenFile(config.Telemetry.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file %s: %w", config.Telemetry.LogFile, err)
			}
			writer = io.MultiWriter(os.Stdout, file)
			closeLog = file.Close
		}
	}

	log.SetOutput(writer)
	log.SetFlags(log.Ldate | log.Ltime)

	jsonHandler := slog.NewJSONHandler(writer, &slog.HandlerOptions{ReplaceAttr: replacer, Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handlerWithSpanContext(jsonHandler, projectID)))
	return closeLog, nil
}
