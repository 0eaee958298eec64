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
	"fmt"
	"strings"
	"time"
)

// Context keys shared by the generation commands.
const (
	RequestParam    = "__request__"    // *model.GenerationRequest
	GenerationParam = "__generation__" // *model.Generation, updated by every step
	StyleParam      = "__style__"      // *cloud.Style selected by the router
	NarrationParam  = "__narration__"  // *model.Narration
	ImageParam      = "__image__"      // *genai.Image handed to the video model
	ImagePathParam  = "__image_path__" // string, local still frame
	VideosParam     = "__videos__"     // []*genai.GeneratedVideo
	ClipsParam      = "__clips__"      // []*model.Clip
	ResultParam     = "__result__"     // *model.StitchResult
)

// timestampedName builds "<prefix>-<unix-nanos>.<ext>".
func timestampedName(prefix string, ext string) string {
	return fmt.Sprintf("%s-%d.%s", prefix, time.Now().UnixNano(), strings.TrimPrefix(ext, "."))
}

// appendSuffix joins a prompt and a style suffix with a single space.
func appendSuffix(prompt string, suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return strings.TrimSpace(prompt)
	}
	return strings.TrimSpace(prompt) + " " + suffix
}
