package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Chat(context.Context, string, string, string) (string, error) {
	return s.reply, s.err
}

func TestCleanResponse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"fenced bash block", "```bash\nls -la\n```", "ls -la"},
		{"fenced plain block", "```\ndf -h\n```", "df -h"},
		{"role echo", "Assistant: ls -a", "ls -a"},
		{"bare command", "pwd", "pwd"},
		{"wrapping quotes", `"free -h"`, "free -h"},
		{"newline collapse", "ls\n-la", "ls -la"},
		{"command with args", "find . -type f -name \"*.txt\"", "find . -type f -name \"*.txt\""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanResponse(tc.raw); got != tc.want {
				t.Fatalf("CleanResponse(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCleanResponseReverseRecovery(t *testing.T) {
	raw := "I can't explain more.\nUser: nonsense\nls -la\n"
	if got := CleanResponse(raw); !strings.Contains(got, "ls") {
		t.Fatalf("reverse-line recovery failed: %q", got)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	gen := NewGenerator(stubCompleter{reply: "```bash\nls -la\n```"}, "mistral:instruct", testGate(), nil)
	command, err := gen.Generate(context.Background(), "list files")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if command != "ls -la" {
		t.Fatalf("unexpected command: %q", command)
	}
}

func TestGenerateRejectsUnsafeOutput(t *testing.T) {
	gen := NewGenerator(stubCompleter{reply: "ls; rm -rf ~"}, "m", testGate(), nil)
	if _, err := gen.Generate(context.Background(), "list files"); err == nil {
		t.Fatal("expected rejection of unsafe generated command")
	}
}

func TestGeneratePropagatesBackendError(t *testing.T) {
	gen := NewGenerator(stubCompleter{err: errors.New("connection refused")}, "m", testGate(), nil)
	if _, err := gen.Generate(context.Background(), "list files"); err == nil {
		t.Fatal("expected error when the backend is down")
	}
}

func TestGenerateRejectsEmptyCleaning(t *testing.T) {
	gen := NewGenerator(stubCompleter{reply: "   "}, "m", testGate(), nil)
	if _, err := gen.Generate(context.Background(), "list files"); err == nil {
		t.Fatal("expected error for empty cleaned command")
	}
}
