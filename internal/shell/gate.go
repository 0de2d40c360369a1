package shell

import (
	"fmt"
	"strings"
)

// Verdict is the gate's decision plus a human-readable reason on rejection.
type Verdict struct {
	Allowed bool
	Reason  string
}

// deniedOperators cover chaining, substitution, and redirection. Any hit is
// fatal regardless of the allow-list: once one of these reaches a shell the
// head token no longer bounds what runs.
var deniedOperators = []string{";", "&&", "||", "`", "$(", ">", "<", "|", "\n"}

type Gate struct {
	allowed map[string]struct{}
}

func NewGate(allowedCommands []string) *Gate {
	allowed := make(map[string]struct{}, len(allowedCommands))
	for _, command := range allowedCommands {
		token := strings.ToLower(strings.TrimSpace(command))
		if token != "" {
			allowed[token] = struct{}{}
		}
	}
	return &Gate{allowed: allowed}
}

// Check vets a command before execution. It runs on every path, generated
// or user-typed, with no exceptions.
func (g *Gate) Check(command string) Verdict {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Verdict{Reason: "empty command"}
	}

	for _, operator := range deniedOperators {
		if strings.Contains(trimmed, operator) {
			return Verdict{Reason: fmt.Sprintf("command contains the disallowed operator %q", printableOperator(operator))}
		}
	}

	head := headToken(trimmed)
	if _, ok := g.allowed[head]; !ok {
		return Verdict{Reason: fmt.Sprintf("%q is not on the command allow-list", head)}
	}
	return Verdict{Allowed: true}
}

// headToken returns the first whitespace-delimited token, looking through a
// leading sudo so the allow-list applies to the real program.
func headToken(command string) string {
	fields := strings.Fields(strings.ToLower(command))
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "sudo" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

func printableOperator(operator string) string {
	if operator == "\n" {
		return "\\n"
	}
	return operator
}
