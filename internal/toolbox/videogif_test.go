package toolbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/shell"
)

type scriptedRunner struct {
	commands []string
	err      error
}

func (r *scriptedRunner) Run(_ context.Context, command string) (string, string, error) {
	r.commands = append(r.commands, command)
	return "", "", r.err
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

func TestListVideosFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "zeta.webm")
	touch(t, dir, "alpha.mp4")
	touch(t, dir, "notes.txt")
	touch(t, dir, "clip.MP4")

	c := New(dir, &scriptedRunner{}, nil, nil)
	files, err := c.ListVideos()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 videos, got %d: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "alpha.mp4" {
		t.Fatalf("expected sorted order, got %v", files)
	}
}

func TestConvertMP4SingleInvocation(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "demo.mp4")
	runner := &scriptedRunner{}
	c := New(dir, runner, func(options []string) (string, bool) {
		return options[0], true
	}, nil)

	result := c.Convert(context.Background())
	if result.ResponseType != "video_conversion_success" {
		t.Fatalf("unexpected response: %+v", result)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("mp4 input must convert in one pass, got %d commands", len(runner.commands))
	}
	if !strings.Contains(runner.commands[0], "palettegen") {
		t.Fatalf("gif pass must use palettegen: %q", runner.commands[0])
	}
	if !strings.Contains(result.Message, filepath.Join(dir, "demo.gif")) {
		t.Fatalf("message must name the output gif: %q", result.Message)
	}
}

func TestConvertWebmGoesThroughTempMP4(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "clip.webm")
	runner := &scriptedRunner{}
	c := New(dir, runner, func(options []string) (string, bool) {
		return options[0], true
	}, nil)

	result := c.Convert(context.Background())
	if result.ResponseType != "video_conversion_success" {
		t.Fatalf("unexpected response: %+v", result)
	}
	if len(runner.commands) != 2 {
		t.Fatalf("webm input needs transcode then gif pass, got %d commands", len(runner.commands))
	}
	if !strings.Contains(runner.commands[0], "libx264") {
		t.Fatalf("first pass must transcode to h264: %q", runner.commands[0])
	}
	if !strings.Contains(runner.commands[1], "clip.temp.mp4") {
		t.Fatalf("gif pass must read the temp mp4: %q", runner.commands[1])
	}
	if _, err := os.Stat(filepath.Join(dir, "clip.temp.mp4")); !os.IsNotExist(err) {
		t.Fatal("temp mp4 must be cleaned up")
	}
}

func TestConvertCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "demo.mp4")
	c := New(dir, &scriptedRunner{}, func([]string) (string, bool) {
		return "", false
	}, nil)

	result := c.Convert(context.Background())
	if result.ResponseType != "video_conversion_error" {
		t.Fatalf("unexpected response: %+v", result)
	}
}

func TestConvertEmptyDownloads(t *testing.T) {
	c := New(t.TempDir(), &scriptedRunner{}, nil, nil)
	result := c.Convert(context.Background())
	if result.ResponseType != "video_conversion_error" {
		t.Fatalf("unexpected response: %+v", result)
	}
	if !strings.Contains(result.Message, "No .mp4 or .webm") {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestCommandsSurviveArgSplitting(t *testing.T) {
	command := joinCommand(GifArgs("/tmp/with space/in.mp4", "/tmp/out.gif"))
	argv, err := shell.SplitArgs(command)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if argv[0] != "ffmpeg" {
		t.Fatalf("unexpected argv: %v", argv)
	}
	found := false
	for _, arg := range argv {
		if arg == "/tmp/with space/in.mp4" {
			found = true
		}
	}
	if !found {
		t.Fatalf("quoted path lost in re-split: %v", argv)
	}
}
