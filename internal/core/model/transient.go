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

// Package model defines the data structures passed between pipeline steps
// (this file) and the records persisted at the end of a run (persistent.go).
package model

// GenerationRequest is the input of a pipeline run. It arrives as the JSON
// body of the HTTP endpoint or as a Pub/Sub message.
type GenerationRequest struct {
	Id     string `json:"id,omitempty"`    // Assigned by the service when empty.
	Prompt string `json:"prompt"`          // The user's text prompt.
	Style  string `json:"style,omitempty"` // Optional style key; skips routing when set.
}

// StyleDecision is the router's answer.
type StyleDecision struct {
	Style  string `json:"style"`            // Key of the selected style.
	Reason string `json:"reason,omitempty"` // Why the router picked it.
}

// Narration is what the writer model returns for a prompt.
type Narration struct {
	Title       string `json:"title"`
	Narration   string `json:"narration"`    // Voice-over text for the clip.
	ImagePrompt string `json:"image_prompt"` // Prompt for the still frame.
	VideoPrompt string `json:"video_prompt"` // Prompt for animating the still frame.
}

// Clip is one downloaded video segment.
type Clip struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`                 // Local file.
	SourceURI string `json:"source_uri,omitempty"` // Where it was fetched from; empty for inline bytes.
}

// StitchResult is the output of the stitcher: the final local artifacts.
type StitchResult struct {
	ImagePath string   `json:"image_path"`
	ClipPaths []string `json:"clip_paths"`
	VideoPath string   `json:"video_path"`
}
