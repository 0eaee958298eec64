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

// This file defines the last step of a style tool: turning the downloaded
// clips into one final video in the output directory.
//
// Logic Flow:
//  1. With one clip, the clip itself is moved to video-<unix-nanos>.mp4.
//  2. With more clips, a concat list over the downloaded temp files is
//     written and FFmpeg is run as a subprocess:
//     ffmpeg -f concat -safe 0 -i <list> -c copy <out> -y
//     The streams are copied, not re-encoded, since every clip comes from the
//     same model with the same codec settings. The clips are moved to the
//     output directory only after FFmpeg succeeds.
//  3. The still image is moved to the output directory.
//  4. The generation record gets the final paths. On failure everything
//     already placed in the output directory is removed; the temp files are
//     left to the chain context.
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/jaycherian/gcp-go-clip-studio/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

const maxStderrInError = 2048

// ClipStitcher concatenates clips with the FFmpeg binary at commandPath.
type ClipStitcher struct {
	cor.BaseCommand
	commandPath string // The FFmpeg executable, e.g. "/usr/bin/ffmpeg" or "ffmpeg".
	outputDir   string // Where final artifacts land; created on demand.
}

func NewClipStitcher(name string, commandPath string, outputDir string) *ClipStitcher {
	out := &ClipStitcher{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		outputDir:   outputDir,
	}
	out.InputParamName = ClipsParam
	out.OutputParamName = ResultParam
	return out
}

func (c *ClipStitcher) Execute(context cor.Context) {
	clips := context.Get(c.GetInputParam()).([]*model.Clip)
	if len(clips) == 0 {
		c.Fail(context, fmt.Errorf("no clips to stitch"))
		return
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		c.Fail(context, fmt.Errorf("failed to create output directory %s: %w", c.outputDir, err))
		return
	}

	result := &model.StitchResult{ClipPaths: make([]string, 0, len(clips))}
	videoPath := filepath.Join(c.outputDir, timestampedName("video", "mp4"))

	// Files placed in the output directory so far. They are removed again if
	// the step fails, since no record will point at them.
	var placed []string
	fail := func(err error) {
		removeAll(placed)
		c.Fail(context, err)
	}

	if len(clips) == 1 {
		if err := MoveFile(clips[0].Path, videoPath); err != nil {
			fail(fmt.Errorf("failed to move clip: %w", err))
			return
		}
		placed = append(placed, videoPath)
		result.ClipPaths = append(result.ClipPaths, videoPath)
	} else {
		// Concatenate from the temp files; they only move once the video exists.
		sources := make([]string, 0, len(clips))
		for _, clip := range clips {
			sources = append(sources, clip.Path)
		}
		placed = append(placed, videoPath)
		if err := c.concat(context, sources, videoPath); err != nil {
			fail(err)
			return
		}
		for _, clip := range clips {
			dest := filepath.Join(c.outputDir, filepath.Base(clip.Path))
			if err := MoveFile(clip.Path, dest); err != nil {
				fail(fmt.Errorf("failed to move clip %d: %w", clip.Index, err))
				return
			}
			placed = append(placed, dest)
			result.ClipPaths = append(result.ClipPaths, dest)
		}
	}

	if imagePath, ok := context.Get(ImagePathParam).(string); ok && imagePath != "" {
		dest := filepath.Join(c.outputDir, filepath.Base(imagePath))
		if err := MoveFile(imagePath, dest); err != nil {
			fail(fmt.Errorf("failed to move image: %w", err))
			return
		}
		result.ImagePath = dest
	}
	result.VideoPath = videoPath

	if gen, ok := context.Get(GenerationParam).(*model.Generation); ok && gen != nil {
		gen.ImagePath = result.ImagePath
		gen.ClipPaths = result.ClipPaths
		gen.VideoPath = result.VideoPath
	}
	slog.InfoContext(context.GetContext(), "video ready", "path", videoPath, "clips", len(clips))

	c.Succeed(context)
	context.Add(c.GetOutputParam(), result)
	context.Add(cor.CtxOut, videoPath)
}

func (c *ClipStitcher) concat(context cor.Context, clipPaths []string, out string) error {
	listFile, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return fmt.Errorf("could not create concat list: %w", err)
	}
	context.AddTempFile(listFile.Name())
	_, err = listFile.WriteString(ConcatList(clipPaths))
	if closeErr := listFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("could not write concat list: %w", err)
	}

	args := ConcatArgs(listFile.Name(), out)
	slog.DebugContext(context.GetContext(), "running ffmpeg", "command", c.commandPath, "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(context.GetContext(), c.commandPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running ffmpeg: %w: %s", err, tail(stderr.String(), maxStderrInError))
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("ffmpeg produced no output at %s: %w", out, err)
	}
	return nil
}

// ConcatList renders the FFmpeg concat demuxer input for the given files.
func ConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatArgs returns the FFmpeg arguments that stream-copy the files listed
// in listFile into out, overwriting it.
func ConcatArgs(listFile string, out string) []string {
	return ffmpeg.Input(listFile, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(out, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		GetArgs()
}

// removeAll deletes files, ignoring those that are already gone.
func removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove output file", "path", p, "error", err)
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MoveFile renames sourcePath to destPath, copying across file systems when a
// plain rename is not possible.
func MoveFile(sourcePath, destPath string) error {
	if err := os.Rename(sourcePath, destPath); err == nil {
		return nil
	}

	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("could not open source file: %w", err)
	}
	defer inputFile.Close()

	outputFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("could not open dest file: %w", err)
	}

	_, err = io.Copy(outputFile, inputFile)
	if closeErr := outputFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("could not copy to dest from source: %w", err)
	}

	inputFile.Close()
	if err := os.Remove(sourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove source file: %w", err)
	}
	return nil
}
