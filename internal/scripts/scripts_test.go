package scripts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingRunner struct {
	command string
	stdout  string
	err     error
}

func (r *recordingRunner) Run(_ context.Context, command string) (string, string, error) {
	r.command = command
	return r.stdout, "", r.err
}

func writeScript(t *testing.T, dir, name string, executable bool) string {
	t.Helper()
	path := filepath.Join(dir, name)
	mode := os.FileMode(0o600)
	if executable {
		mode = 0o700
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho ok\n"), mode); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunAllowedScript(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "backup.sh", true)
	runner := &recordingRunner{stdout: "backed up 42 files"}
	m := New([]string{dir}, []string{"backup.sh"}, nil, runner, nil)

	result := m.Run(context.Background(), "backup.sh")
	if result.ResponseType != "script_execution" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if runner.command != path {
		t.Fatalf("expected runner to get %q, got %q", path, runner.command)
	}
	if !strings.Contains(result.Message, "backed up 42 files") {
		t.Fatalf("output missing from message: %q", result.Message)
	}
}

func TestRunRejectsUnlistedScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "evil.sh", true)
	runner := &recordingRunner{}
	m := New([]string{dir}, []string{"backup.sh"}, nil, runner, nil)

	result := m.Run(context.Background(), "evil.sh")
	if result.ResponseType != "script_error" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if runner.command != "" {
		t.Fatal("runner must not be invoked for unlisted scripts")
	}
}

func TestRunRefusesBlockedScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "kaia_env_setup.sh", true)
	runner := &recordingRunner{}
	m := New([]string{dir}, []string{"kaia_env_setup.sh"}, []string{"kaia_env_setup.sh"}, runner, nil)

	result := m.Run(context.Background(), "kaia_env_setup.sh")
	if result.ResponseType != "script_interactive_error" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if !strings.Contains(result.Message, "manually") {
		t.Fatalf("refusal must point at manual execution: %q", result.Message)
	}
	if runner.command != "" {
		t.Fatal("runner must not be invoked for blocked scripts")
	}
}

func TestRunRejectsNonExecutable(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "backup.sh", false)
	m := New([]string{dir}, []string{"backup.sh"}, nil, &recordingRunner{}, nil)

	result := m.Run(context.Background(), "backup.sh")
	if result.ResponseType != "script_error" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if !strings.Contains(result.Message, "not executable") {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestRunStripsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "backup.sh", true)
	runner := &recordingRunner{}
	m := New([]string{dir}, []string{"backup.sh"}, nil, runner, nil)

	result := m.Run(context.Background(), "../../etc/backup.sh")
	if result.ResponseType != "script_execution" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if runner.command != filepath.Join(dir, "backup.sh") {
		t.Fatalf("traversal not neutralized: %q", runner.command)
	}
}

func TestRunMissingScript(t *testing.T) {
	m := New([]string{t.TempDir()}, []string{"backup.sh"}, nil, &recordingRunner{}, nil)
	result := m.Run(context.Background(), "backup.sh")
	if result.ResponseType != "script_error" {
		t.Fatalf("unexpected response type: %q", result.ResponseType)
	}
	if !strings.Contains(result.Message, "not found") {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}
