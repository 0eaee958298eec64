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

// This file defines the command that decides which style preset a prompt is
// rendered in.
//
// Logic Flow:
//  1. A request that names a configured style keeps it; no model call is made.
//  2. Otherwise the router prompt is built from a Go template with the list
//     of presets and their definitions, a JSON example of the expected answer
//     and the user's prompt.
//  3. The model answers with {"style": "...", "reason": "..."}.
//  4. If the model fails, answers with something unparseable or picks a key
//     that is not configured, the router looks for the presets' keywords in
//     the prompt and finally falls back to the default style. Routing never
//     fails the chain.
//  5. The selected preset is placed in the context and recorded on the
//     generation.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const (
	RouteExplicit = "requested explicitly"
	RouteKeyword  = "matched keyword"
	RouteDefault  = "default style"
)

// StyleRouter classifies a prompt into one of the configured style presets.
type StyleRouter struct {
	cor.BaseCommand
	config             *cloud.Config
	model              cloud.ContentGenerator // Nil disables the LLM call.
	template           *template.Template
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
	fallbackCounter    metric.Int64Counter
}

func NewStyleRouter(name string, config *cloud.Config, model cloud.ContentGenerator) (*StyleRouter, error) {
	tmpl, err := template.New(name).Parse(config.PromptTemplates.RouterPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse router template: %w", err)
	}
	out := &StyleRouter{
		BaseCommand: *cor.NewBaseCommand(name),
		config:      config,
		model:       model,
		template:    tmpl,
	}
	out.InputParamName = RequestParam
	out.inputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.outputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	out.fallbackCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.fallback", out.GetName()))
	return out, nil
}

// GenerateParams creates the data the router template is rendered with.
func (r *StyleRouter) GenerateParams(req *model.GenerationRequest) map[string]interface{} {
	params := make(map[string]interface{})

	var styles strings.Builder
	for _, key := range r.config.StyleKeys() {
		style := r.config.Styles[key]
		styles.WriteString(fmt.Sprintf("%s - %s: %s\n", key, style.Name, style.Definition))
	}
	params["STYLES"] = styles.String()

	example, _ := json.Marshal(model.GetExampleStyleDecision())
	params["EXAMPLE_JSON"] = string(example)
	params["PROMPT"] = req.Prompt
	return params
}

func (r *StyleRouter) Execute(context cor.Context) {
	req := context.Get(r.GetInputParam()).(*model.GenerationRequest)

	decision := r.Route(context, req)
	style := r.config.Styles[decision.Style]

	if gen, ok := context.Get(GenerationParam).(*model.Generation); ok && gen != nil {
		gen.Style = decision.Style
		gen.Reason = decision.Reason
	}
	slog.InfoContext(context.GetContext(), "style selected", "style", decision.Style, "reason", decision.Reason)

	r.Succeed(context)
	context.Add(StyleParam, &style)
	context.Add(r.GetOutputParam(), req)
}

// Route returns the selected style key and the reason for it.
func (r *StyleRouter) Route(context cor.Context, req *model.GenerationRequest) *model.StyleDecision {
	if _, ok := r.config.Styles[req.Style]; ok && req.Style != "" {
		return &model.StyleDecision{Style: req.Style, Reason: RouteExplicit}
	}

	decision, err := r.classify(context, req)
	if err == nil {
		return decision
	}
	slog.WarnContext(context.GetContext(), "style routing fell back", "error", err)
	if r.fallbackCounter != nil {
		r.fallbackCounter.Add(context.GetContext(), 1)
	}

	if key, ok := r.matchKeywords(req.Prompt); ok {
		return &model.StyleDecision{Style: key, Reason: RouteKeyword}
	}
	return &model.StyleDecision{Style: r.config.Application.DefaultStyle, Reason: RouteDefault}
}

func (r *StyleRouter) classify(context cor.Context, req *model.GenerationRequest) (*model.StyleDecision, error) {
	if r.model == nil {
		return nil, fmt.Errorf("no router model configured")
	}

	var buffer bytes.Buffer
	if err := r.template.Execute(&buffer, r.GenerateParams(req)); err != nil {
		return nil, fmt.Errorf("failed to execute router template: %w", err)
	}

	out, err := cloud.GenerateMultiModalResponse(context.GetContext(), r.inputTokenCounter, r.outputTokenCounter, r.retryCounter, 0, r.model, cloud.NewTextContent(buffer.String()))
	if err != nil {
		return nil, fmt.Errorf("router request failed: %w", err)
	}

	decision := &model.StyleDecision{}
	if err := json.Unmarshal([]byte(out), decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal style decision %q: %w", out, err)
	}
	decision.Style = strings.ToLower(strings.TrimSpace(decision.Style))
	if _, ok := r.config.Styles[decision.Style]; !ok {
		return nil, fmt.Errorf("router picked unknown style %q", decision.Style)
	}
	return decision, nil
}

// matchKeywords checks presets in key order; the first preset with a keyword
// contained in the prompt wins.
func (r *StyleRouter) matchKeywords(prompt string) (string, bool) {
	lower := strings.ToLower(prompt)
	for _, key := range r.config.StyleKeys() {
		for _, keyword := range r.config.Styles[key].Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(lower, keyword) {
				return key, true
			}
		}
	}
	return "", false
}
