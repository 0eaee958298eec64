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

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusQueued    = "queued"
)

// Generation is the record of one pipeline run. It is returned by the API
// and stored as a row in BigQuery.
type Generation struct {
	Id         string    `json:"id" bigquery:"id"`
	Prompt     string    `json:"prompt" bigquery:"prompt"`
	Style      string    `json:"style" bigquery:"style"`
	Reason     string    `json:"style_reason,omitempty" bigquery:"style_reason"`
	Title      string    `json:"title" bigquery:"title"`
	Narration  string    `json:"narration" bigquery:"narration"`
	ImagePath  string    `json:"image_path" bigquery:"image_path"`
	ClipPaths  []string  `json:"clip_paths" bigquery:"clip_paths"`
	VideoPath  string    `json:"video_path" bigquery:"video_path"`
	VideoUrl   string    `json:"video_url,omitempty" bigquery:"video_url"`
	Status     string    `json:"status" bigquery:"status"`
	Error      string    `json:"error,omitempty" bigquery:"error"`
	CreateDate time.Time `json:"create_date" bigquery:"create_date"`
}

// NewGeneration creates a running record for a request, assigning a random
// id when the request carries none.
func NewGeneration(req *GenerationRequest) *Generation {
	id := req.Id
	if id == "" {
		id = uuid.NewString()
	}
	return &Generation{
		Id:         id,
		Prompt:     req.Prompt,
		Style:      req.Style,
		ClipPaths:  make([]string, 0),
		Status:     StatusRunning,
		CreateDate: time.Now(),
	}
}
