package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Runner is what executes the script once it clears the gate.
type Runner interface {
	Run(ctx context.Context, command string) (string, string, error)
}

// Result carries the outcome plus a response type for interaction logging.
type Result struct {
	Message      string
	ResponseType string
}

type Manager struct {
	dirs    []string
	allowed map[string]struct{}
	blocked map[string]struct{}
	runner  Runner
	logger  *zap.Logger
}

// New builds a script manager. dirs are searched in order for the named
// script; allowed and blocked are matched on the bare script name.
func New(dirs []string, allowed, blocked []string, runner Runner, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dirs:    dirs,
		allowed: nameSet(allowed),
		blocked: nameSet(blocked),
		runner:  runner,
		logger:  logger,
	}
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Run executes a named script if it is allow-listed, present, and
// executable. Blocked scripts get a refusal telling the user to run them
// manually; those are interactive setup scripts that need a real terminal.
func (m *Manager) Run(ctx context.Context, name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Message: "Error: no script named.", ResponseType: "script_error"}
	}
	base := filepath.Base(name)
	key := strings.ToLower(base)

	if _, ok := m.allowed[key]; !ok {
		return Result{
			Message:      fmt.Sprintf("Error: Script %q is not in the allowlist for direct execution.", base),
			ResponseType: "script_error",
		}
	}
	if _, ok := m.blocked[key]; ok {
		return Result{
			Message:      fmt.Sprintf("Error: Script %q is interactive and cannot be run directly by Kaia. Please run it manually in your terminal.", base),
			ResponseType: "script_interactive_error",
		}
	}

	path, err := m.resolve(base)
	if err != nil {
		return Result{Message: "Error: " + err.Error(), ResponseType: "script_error"}
	}

	m.logger.Info("running script", zap.String("path", path))
	stdout, stderr, err := m.runner.Run(ctx, path)
	if err != nil {
		message := fmt.Sprintf("Script failed: %v", err)
		if stderr != "" {
			message += "\nStderr:\n" + stderr
		}
		if stdout != "" {
			message += "\nStdout:\n" + stdout
		}
		return Result{Message: message, ResponseType: "script_execution"}
	}

	message := "Script executed successfully."
	if stdout != "" {
		message += "\nOutput:\n" + stdout
	}
	if stderr != "" {
		message += "\nStderr:\n" + stderr
	}
	return Result{Message: message, ResponseType: "script_execution"}
}

func (m *Manager) resolve(base string) (string, error) {
	for _, dir := range m.dirs {
		path := filepath.Join(dir, base)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("script %q at %q is not executable", base, path)
		}
		return path, nil
	}
	return "", fmt.Errorf("script %q not found in script directories", base)
}
