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

// This file defines the first step of a style tool: asking the language
// model for narration plus the prompts for the image and video models.
//
// Logic Flow:
//  1. The writer picks the model configured for the selected style. Each
//     style's model carries that style's system instructions.
//  2. The narration template is rendered with the style, the user prompt and
//     a JSON example of the expected answer (few-shot prompting).
//  3. The raw JSON answer is written to CtxOut; NarrationJsonToStruct parses
//     it in the next step.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

type NarrationWriter struct {
	cor.BaseCommand
	models             map[string]cloud.ContentGenerator // Keyed by style.
	defaultModel       cloud.ContentGenerator
	template           *template.Template
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewNarrationWriter builds the writer. models maps a style key to a model
// primed with that style's system instructions; styles without an entry use
// defaultModel.
func NewNarrationWriter(
	name string,
	config *cloud.Config,
	models map[string]cloud.ContentGenerator,
	defaultModel cloud.ContentGenerator) (*NarrationWriter, error) {

	tmpl, err := template.New(name).Parse(config.PromptTemplates.NarrationPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse narration template: %w", err)
	}
	if models == nil {
		models = make(map[string]cloud.ContentGenerator)
	}
	out := &NarrationWriter{
		BaseCommand:  *cor.NewBaseCommand(name),
		models:       models,
		defaultModel: defaultModel,
		template:     tmpl,
	}
	out.InputParamName = StyleParam
	out.inputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.outputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out, nil
}

func (w *NarrationWriter) IsExecutable(context cor.Context) bool {
	return w.BaseCommand.IsExecutable(context) && context.Get(RequestParam) != nil
}

func (w *NarrationWriter) GenerateParams(req *model.GenerationRequest, style *cloud.Style) map[string]interface{} {
	params := make(map[string]interface{})
	params["PROMPT"] = req.Prompt
	params["STYLE_NAME"] = style.Name
	params["STYLE_DEFINITION"] = style.Definition
	params["CLIP_SECONDS"] = style.ClipSeconds * style.NumberOfClips
	example, _ := json.Marshal(model.GetExampleNarration())
	params["EXAMPLE_JSON"] = string(example)
	return params
}

func (w *NarrationWriter) modelFor(context cor.Context) cloud.ContentGenerator {
	if gen, ok := context.Get(GenerationParam).(*model.Generation); ok && gen != nil {
		if m, found := w.models[gen.Style]; found && m != nil {
			return m
		}
	}
	return w.defaultModel
}

func (w *NarrationWriter) Execute(context cor.Context) {
	style := context.Get(w.GetInputParam()).(*cloud.Style)
	req := context.Get(RequestParam).(*model.GenerationRequest)

	llm := w.modelFor(context)
	if llm == nil {
		w.Fail(context, fmt.Errorf("no narration model configured"))
		return
	}

	var buffer bytes.Buffer
	if err := w.template.Execute(&buffer, w.GenerateParams(req, style)); err != nil {
		w.Fail(context, fmt.Errorf("failed to execute narration template: %w", err))
		return
	}

	out, err := cloud.GenerateMultiModalResponse(context.GetContext(), w.inputTokenCounter, w.outputTokenCounter, w.retryCounter, 0, llm, cloud.NewTextContent(buffer.String()))
	if err != nil {
		w.Fail(context, fmt.Errorf("narration request failed: %w", err))
		return
	}

	w.Succeed(context)
	context.Add(w.GetOutputParam(), out)
}
