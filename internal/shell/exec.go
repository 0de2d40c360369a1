package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes a single vetted command as a child process with its own
// timeout. No shell is involved: the command is split into an argv and the
// program is invoked directly.
type Runner struct {
	Timeout time.Duration
	workDir string
}

func NewRunner(timeout time.Duration) *Runner {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Runner{Timeout: timeout, workDir: wd}
}

func (r *Runner) WorkDir() string { return r.workDir }

// Chdir handles an in-process directory change; `cd` cannot usefully run as
// a child process.
func (r *Runner) Chdir(target string) error {
	target = strings.TrimSpace(expandHome(target))
	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not resolve home directory: %w", err)
		}
		target = home
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.workDir, target)
	}
	resolved, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("could not resolve directory: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("directory not found: %s", target)
	}
	r.workDir = resolved
	return nil
}

// Run executes the command and returns captured stdout and stderr. A
// non-zero exit or a timeout comes back as an error with the captured
// output intact.
func (r *Runner) Run(ctx context.Context, command string) (string, string, error) {
	argv, err := SplitArgs(expandHome(command))
	if err != nil {
		return "", "", err
	}
	if len(argv) == 0 {
		return "", "", fmt.Errorf("empty command")
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = r.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())
	if runCtx.Err() == context.DeadlineExceeded {
		return out, errOut, fmt.Errorf("command timed out after %s", r.Timeout)
	}
	if err != nil {
		return out, errOut, fmt.Errorf("command failed: %w", err)
	}
	return out, errOut, nil
}

// expandHome expands a token-leading ~ plus $HOME and $USER references.
// A ~ inside a token stays literal.
func expandHome(command string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return command
	}
	fields := strings.Split(command, " ")
	for i, field := range fields {
		if field == "~" || strings.HasPrefix(field, "~/") {
			fields[i] = home + field[1:]
		}
	}
	expanded := strings.Join(fields, " ")
	expanded = strings.ReplaceAll(expanded, "$HOME", home)
	return strings.ReplaceAll(expanded, "$USER", os.Getenv("USER"))
}

// SplitArgs splits a command line into an argv, honoring single and double
// quotes. Unterminated quotes are an error rather than a guess.
func SplitArgs(command string) ([]string, error) {
	var argv []string
	var current strings.Builder
	inToken := false
	var quote rune

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				argv = append(argv, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command")
	}
	if inToken {
		argv = append(argv, current.String())
	}
	return argv, nil
}
