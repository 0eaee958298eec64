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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// NarrationJsonToStruct parses the writer's JSON answer into a Narration.
// Missing visual prompts fall back to the user prompt, and the selected
// style's suffixes are appended to both visual prompts.
type NarrationJsonToStruct struct {
	cor.BaseCommand
}

func NewNarrationJsonToStruct(name string) *NarrationJsonToStruct {
	out := NarrationJsonToStruct{BaseCommand: *cor.NewBaseCommand(name)}
	out.OutputParamName = NarrationParam
	return &out
}

func (s *NarrationJsonToStruct) IsExecutable(context cor.Context) bool {
	return s.BaseCommand.IsExecutable(context) && context.Get(RequestParam) != nil && context.Get(StyleParam) != nil
}

func (s *NarrationJsonToStruct) Execute(context cor.Context) {
	in, ok := context.Get(s.GetInputParam()).(string)
	if !ok {
		s.Fail(context, fmt.Errorf("expected narration json, got %T", context.Get(s.GetInputParam())))
		return
	}
	req := context.Get(RequestParam).(*model.GenerationRequest)
	style := context.Get(StyleParam).(*cloud.Style)

	doc := &model.Narration{}
	if err := json.Unmarshal([]byte(cloud.StripJSONFence(in)), doc); err != nil {
		s.Fail(context, fmt.Errorf("failed to unmarshal narration JSON: %w", err))
		return
	}

	if strings.TrimSpace(doc.ImagePrompt) == "" {
		doc.ImagePrompt = req.Prompt
	}
	if strings.TrimSpace(doc.VideoPrompt) == "" {
		doc.VideoPrompt = req.Prompt
	}
	doc.ImagePrompt = appendSuffix(doc.ImagePrompt, style.ImageSuffix)
	doc.VideoPrompt = appendSuffix(doc.VideoPrompt, style.VideoSuffix)

	if gen, ok := context.Get(GenerationParam).(*model.Generation); ok && gen != nil {
		gen.Title = doc.Title
		gen.Narration = doc.Narration
	}

	s.Succeed(context)
	context.Add(s.GetOutputParam(), doc)
	context.Add(cor.CtxOut, doc)
}
