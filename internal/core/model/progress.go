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

import "time"

const (
	EventStarted   = "started"
	EventStep      = "step"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// ProgressEvent is streamed to websocket clients while a generation runs.
type ProgressEvent struct {
	GenerationId string    `json:"generation_id"`
	Type         string    `json:"type"`           // started, step, completed or failed.
	Step         string    `json:"step,omitempty"` // Command name for step events.
	Ok           bool      `json:"ok"`
	Message      string    `json:"message,omitempty"`
	Time         time.Time `json:"time"`
}

// Terminal reports whether no further events follow this one.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}
