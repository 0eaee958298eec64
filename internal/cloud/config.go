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

// Package cloud holds configuration and the Google Cloud and GenAI clients the
// pipeline runs against. This file defines the TOML-backed configuration
// structure; see utils.go for how the files are layered.
package cloud

import (
	"fmt"
	"sort"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultPollIntervalSeconds = 10
	DefaultPollTimeoutSeconds  = 600
	DefaultFfmpegCommand       = "ffmpeg"
	DefaultOutputDir           = "output"
)

var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

type BigQueryDataSource struct {
	DatasetName     string `toml:"dataset"`          // The BigQuery dataset.
	GenerationTable string `toml:"generation_table"` // Table holding one row per generation run.
}

type PromptTemplates struct {
	RouterPrompt    string `toml:"router"`    // Template used to classify a prompt into a style.
	NarrationPrompt string `toml:"narration"` // Template used to write narration and visual prompts.
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The model name, e.g. "gemini-2.5-flash".
	SystemInstructions string  `toml:"system_instructions"` // Default system instructions.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. "application/json".
	RateLimit          int     `toml:"rate_limit"`    // Requests per second (burst).
}

type ImageModel struct {
	Model     string `toml:"model"`      // e.g. "imagen-3.0-generate-002".
	MIMEType  string `toml:"mime_type"`  // Output MIME type, e.g. "image/png".
	RateLimit int    `toml:"rate_limit"` // Requests per second (burst).
}

type VideoModel struct {
	Model        string `toml:"model"`          // e.g. "veo-2.0-generate-001".
	OutputGCSURI string `toml:"output_gcs_uri"` // Optional gs:// prefix Vertex writes clips to.
	RateLimit    int    `toml:"rate_limit"`     // Requests per second (burst).
}

type TopicSubscription struct {
	Name             string `toml:"name"`               // The Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // Dead-letter topic, managed outside the app.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // Per-message processing budget.
}

type Storage struct {
	OutputBucket string `toml:"output_bucket"` // Bucket final videos are uploaded to; empty disables upload.
}

type Polling struct {
	IntervalSeconds int `toml:"interval_seconds"` // Fixed delay between operation status checks.
	TimeoutSeconds  int `toml:"timeout_seconds"`  // Upper bound on the whole wait.
}

// Interval returns the poll interval, falling back to the default.
func (p Polling) Interval() time.Duration {
	if p.IntervalSeconds <= 0 {
		return DefaultPollIntervalSeconds * time.Second
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Timeout returns the poll timeout, falling back to the default.
func (p Polling) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return DefaultPollTimeoutSeconds * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Style is a generation preset. The router reads Definition to decide which
// preset a prompt belongs to; the remaining fields parameterize the tools.
type Style struct {
	Name               string   `toml:"name"`                // Display name, e.g. "Cinematic".
	Definition         string   `toml:"definition"`          // What the preset is for; shown to the router.
	SystemInstructions string   `toml:"system_instructions"` // Narration writer persona for this preset.
	ImageSuffix        string   `toml:"image_suffix"`        // Appended to the image prompt.
	VideoSuffix        string   `toml:"video_suffix"`        // Appended to the video prompt.
	AspectRatio        string   `toml:"aspect_ratio"`        // "16:9" or "9:16".
	NumberOfClips      int32    `toml:"number_of_clips"`     // Clips requested from the video model.
	ClipSeconds        int32    `toml:"clip_seconds"`        // Duration of each clip.
	Keywords           []string `toml:"keywords"`            // Hints used when the router cannot reach the LLM.
}

type Telemetry struct {
	Enabled bool   `toml:"enabled"`  // Export traces and metrics to Google Cloud.
	LogFile string `toml:"log_file"` // Optional file that mirrors stdout logs.
}

type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		Backend                   string `toml:"backend"` // "vertex" (default) or "gemini".
		ThreadPoolSize            int    `toml:"thread_pool_size"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		OutputDir                 string `toml:"output_dir"`
		OutputRetentionHours      int    `toml:"output_retention_hours"`
		FfmpegCommand             string `toml:"ffmpeg_command"`
		DefaultStyle              string `toml:"default_style"`
		RouterModel               string `toml:"router_model"`    // Key into AgentModels.
		NarrationModel            string `toml:"narration_model"` // Key into AgentModels.
		ImageModel                string `toml:"image_model"`     // Key into ImageModels.
		VideoModel                string `toml:"video_model"`     // Key into VideoModels.
		Port                      int    `toml:"port"`
	} `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by logical name, e.g. "GenerationTopic".
	Topics             map[string]string            `toml:"topics"`              // Logical name to Pub/Sub topic id.
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	ImageModels        map[string]ImageModel        `toml:"image_models"`
	VideoModels        map[string]VideoModel        `toml:"video_models"`
	Polling            Polling                      `toml:"polling"`
	Styles             map[string]Style             `toml:"styles"`
	Telemetry          Telemetry                    `toml:"telemetry"`
}

func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		Topics:             make(map[string]string),
		AgentModels:        make(map[string]VertexAiLLMModel),
		ImageModels:        make(map[string]ImageModel),
		VideoModels:        make(map[string]VideoModel),
		Styles:             make(map[string]Style),
	}
}

// StyleKeys returns the configured style keys in sorted order.
func (c *Config) StyleKeys() []string {
	keys := make([]string, 0, len(c.Styles))
	for k := range c.Styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FfmpegPath returns the configured ffmpeg binary, or "ffmpeg" from PATH.
func (c *Config) FfmpegPath() string {
	if c.Application.FfmpegCommand == "" {
		return DefaultFfmpegCommand
	}
	return c.Application.FfmpegCommand
}

// OutputDir returns the directory final artifacts are written to.
func (c *Config) OutputDir() string {
	if c.Application.OutputDir == "" {
		return DefaultOutputDir
	}
	return c.Application.OutputDir
}

// Validate checks the cross references between sections.
func (c *Config) Validate() error {
	if len(c.Styles) == 0 {
		return fmt.Errorf("no styles configured")
	}
	if _, ok := c.Styles[c.Application.DefaultStyle]; !ok {
		return fmt.Errorf("default style %q is not configured", c.Application.DefaultStyle)
	}
	for key, s := range c.Styles {
		if s.NumberOfClips < 1 {
			return fmt.Errorf("style %q: number_of_clips must be at least 1", key)
		}
	}
	if _, ok := c.AgentModels[c.Application.RouterModel]; !ok {
		return fmt.Errorf("router model %q is not configured", c.Application.RouterModel)
	}
	if _, ok := c.AgentModels[c.Application.NarrationModel]; !ok {
		return fmt.Errorf("narration model %q is not configured", c.Application.NarrationModel)
	}
	if _, ok := c.ImageModels[c.Application.ImageModel]; !ok {
		return fmt.Errorf("image model %q is not configured", c.Application.ImageModel)
	}
	if _, ok := c.VideoModels[c.Application.VideoModel]; !ok {
		return fmt.Errorf("video model %q is not configured", c.Application.VideoModel)
	}
	return nil
}
