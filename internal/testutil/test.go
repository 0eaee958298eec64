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

// Package test provides the configuration and in-memory fakes shared by the
// test suites. The fakes stand in for the Gemini, Imagen, Veo, BigQuery and
// Pub/Sub clients behind the small interfaces the pipeline depends on.
package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// TestConfig mirrors configs/.env.toml with short polling and no cloud
// project, so nothing in it reaches the network.
const TestConfig = `
[application]
name = "clip-studio-test"
default_style = "cinematic"
router_model = "router"
narration_model = "narration"
image_model = "imagen"
video_model = "veo"
ffmpeg_command = "ffmpeg"

[polling]
interval_seconds = 1
timeout_seconds = 5

[agent_models.router]
model = "gemini-2.5-flash"
output_format = "application/json"

[agent_models.narration]
model = "gemini-2.5-flash"
output_format = "application/json"

[image_models.imagen]
model = "imagen-3.0-generate-002"
mime_type = "image/png"

[video_models.veo]
model = "veo-2.0-generate-001"

[styles.high-energy]
name = "High Energy"
definition = "Fast, punchy, upbeat content."
system_instructions = "You are a hype video producer."
image_suffix = "vibrant colors"
video_suffix = "fast camera movement"
aspect_ratio = "9:16"
number_of_clips = 2
clip_seconds = 5
keywords = ["workout", "gym", "party"]

[styles.advertisement]
name = "Advertisement"
definition = "Promotional content with a call to action."
system_instructions = "You are a commercial copywriter."
image_suffix = "studio product photography"
video_suffix = "smooth product reveal"
aspect_ratio = "16:9"
number_of_clips = 1
clip_seconds = 8
keywords = ["product", "sale", "brand"]

[styles.cinematic]
name = "Cinematic"
definition = "Story driven, atmospheric content."
image_suffix = "cinematic still"
video_suffix = "slow push in"
aspect_ratio = "16:9"
number_of_clips = 2
clip_seconds = 8
keywords = ["film", "landscape", "trailer"]

[prompt_templates]
router = "Styles:\n{{.STYLES}}\nExample: {{.EXAMPLE_JSON}}\nRequest: {{.PROMPT}}"
narration = "Write a {{.STYLE_NAME}} video ({{.STYLE_DEFINITION}}) of {{.CLIP_SECONDS}} seconds. Example: {{.EXAMPLE_JSON}} Request: {{.PROMPT}}"
`

// GetConfig decodes TestConfig into a fresh config. Each call returns a new
// value so tests may modify it.
func GetConfig() *cloud.Config {
	config := cloud.NewConfig()
	if _, err := toml.Decode(TestConfig, config); err != nil {
		panic(fmt.Sprintf("invalid test configuration: %v", err))
	}
	return config
}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// PNGBytes is the smallest header filetype recognises as a PNG.
var PNGBytes = []byte{
	0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
}

// MP4Bytes is the smallest header filetype recognises as an MP4.
var MP4Bytes = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

// NarrationJSON is a valid narration document as the LLM would return it.
const NarrationJSON = "```json\n" + `{"title":"Morning Brew","narration":"One cup sets the pace.","image_prompt":"a coffee cup at dawn","video_prompt":"steam rises from the cup"}` + "\n```"

// TextResponse wraps text as a single candidate response.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 34,
		},
	}
}

// FakeLLM answers GenerateContent from Responses in order, repeating the
// last one. When Err is set every call fails.
type FakeLLM struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
}

func (f *FakeLLM) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range content {
		for _, p := range c.Parts {
			f.Prompts = append(f.Prompts, p.Text)
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Responses) == 0 {
		return nil, errors.New("no fake response configured")
	}
	text := f.Responses[0]
	if len(f.Responses) > 1 {
		f.Responses = f.Responses[1:]
	}
	return TextResponse(text), nil
}

// Calls returns how many requests the model received.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// FakeImageModel returns PNGBytes, or the configured error or filter reason.
type FakeImageModel struct {
	mu             sync.Mutex
	Err            error
	FilteredReason string
	Data           []byte // Defaults to PNGBytes.
	Prompts        []string
	Configs        []*genai.GenerateImagesConfig
}

func (f *FakeImageModel) GenerateImages(ctx context.Context, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	f.Configs = append(f.Configs, config)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.FilteredReason != "" {
		return &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: f.FilteredReason}},
		}, nil
	}
	data := f.Data
	if data == nil {
		data = PNGBytes
	}
	return &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{
			{Image: &genai.Image{ImageBytes: data, MIMEType: "image/png"}},
		},
	}, nil
}

// FakeVideoModel starts an operation that completes after PollsUntilDone
// polls. The finished operation carries Videos, or one inline MP4 per
// requested clip when Videos is nil.
type FakeVideoModel struct {
	mu             sync.Mutex
	PollsUntilDone int
	NeverDone      bool
	BlockOnPoll    bool // Polls wait for ctx to end and return its error.
	StartErr       error
	OperationError map[string]any
	FilterReasons  []string
	Videos         []*genai.GeneratedVideo
	Prompts        []string
	Configs        []*genai.GenerateVideosConfig
	Polls          int
}

func (f *FakeVideoModel) GenerateVideos(ctx context.Context, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	f.Configs = append(f.Configs, config)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if image == nil {
		return nil, errors.New("video generation needs a starting image")
	}
	op := &genai.GenerateVideosOperation{Name: "operations/fake-video"}
	if f.PollsUntilDone <= 0 && !f.NeverDone {
		f.complete(op, config)
	}
	return op, nil
}

func (f *FakeVideoModel) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	f.Polls++
	if f.BlockOnPoll {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	next := &genai.GenerateVideosOperation{Name: op.Name}
	if !f.NeverDone && f.Polls >= f.PollsUntilDone {
		var config *genai.GenerateVideosConfig
		if len(f.Configs) > 0 {
			config = f.Configs[len(f.Configs)-1]
		}
		f.complete(next, config)
	}
	return next, nil
}

func (f *FakeVideoModel) complete(op *genai.GenerateVideosOperation, config *genai.GenerateVideosConfig) {
	op.Done = true
	if f.OperationError != nil {
		op.Error = f.OperationError
		return
	}
	op.Response = &genai.GenerateVideosResponse{RAIMediaFilteredReasons: f.FilterReasons}
	if f.FilterReasons != nil {
		return
	}
	if f.Videos != nil {
		op.Response.GeneratedVideos = f.Videos
		return
	}
	count := int32(1)
	if config != nil && config.NumberOfVideos > 0 {
		count = config.NumberOfVideos
	}
	for i := int32(0); i < count; i++ {
		op.Response.GeneratedVideos = append(op.Response.GeneratedVideos, &genai.GeneratedVideo{
			Video: &genai.Video{VideoBytes: MP4Bytes, MIMEType: "video/mp4"},
		})
	}
}

// FakeInserter keeps a copy of every generation written to it.
type FakeInserter struct {
	mu   sync.Mutex
	Err  error
	Rows []model.Generation
}

func (f *FakeInserter) Put(ctx context.Context, src interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	gen, ok := src.(*model.Generation)
	if !ok {
		return fmt.Errorf("unexpected row type %T", src)
	}
	f.Rows = append(f.Rows, *gen)
	return nil
}

// Snapshot returns the rows written so far.
func (f *FakeInserter) Snapshot() []model.Generation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Generation(nil), f.Rows...)
}

// PublishedMessage is one message sent to a FakePublisher.
type PublishedMessage struct {
	Data       []byte
	Attributes map[string]string
}

// FakePublisher records published messages instead of sending them.
type FakePublisher struct {
	mu       sync.Mutex
	Err      error
	Messages []PublishedMessage
}

func (f *FakePublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.Messages = append(f.Messages, PublishedMessage{Data: data, Attributes: attributes})
	return fmt.Sprintf("msg-%d", len(f.Messages)), nil
}
