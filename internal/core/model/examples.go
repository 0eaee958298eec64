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

package model

// GetExampleNarration is the few-shot example embedded in the narration
// prompt so the model returns the exact JSON shape Narration expects.
func GetExampleNarration() *Narration {
	return &Narration{
		Title:       "Morning Brew",
		Narration:   "Before the city wakes, one cup sets the pace. Rich, slow, and entirely yours.",
		ImagePrompt: "A steaming ceramic coffee cup on a wooden counter by a rain-streaked window at dawn, warm rim light",
		VideoPrompt: "Steam curls upward from the cup as the camera slowly pushes in and raindrops slide down the glass",
	}
}

// GetExampleStyleDecision is the few-shot example for the router prompt.
func GetExampleStyleDecision() *StyleDecision {
	return &StyleDecision{
		Style:  "advertisement",
		Reason: "The prompt promotes a product and asks for a call to action.",
	}
}
