package shell

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Completer is the plain chat completion the generator needs.
type Completer interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

type Generator struct {
	llm    Completer
	model  string
	gate   *Gate
	logger *zap.Logger
}

func NewGenerator(llm Completer, model string, gate *Gate, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: llm, model: model, gate: gate, logger: logger}
}

// Generate turns a natural-language intent into a single vetted shell
// command. A gate rejection is an error here; nothing unsafe escapes.
func (g *Generator) Generate(ctx context.Context, intent string) (string, error) {
	raw, err := g.llm.Chat(ctx, g.model, commandGenerationSystemPrompt, intent)
	if err != nil {
		return "", fmt.Errorf("could not generate command: %w", err)
	}

	command := CleanResponse(raw)
	g.logger.Debug("cleaned generated command",
		zap.String("raw", raw), zap.String("command", command))
	if command == "" {
		return "", fmt.Errorf("empty command generated")
	}

	if verdict := g.gate.Check(command); !verdict.Allowed {
		return "", fmt.Errorf("generated command rejected: %s", verdict.Reason)
	}
	return command, nil
}

var (
	fencedBlockPattern  = regexp.MustCompile("(?s)```(?:bash|sh)?\n(.*?)```")
	roleEchoPattern     = regexp.MustCompile(`(?i)(User:|Assistant:)\s*`)
	newlineRunPattern   = regexp.MustCompile(`\s*\n\s*`)
	commandShapePattern = regexp.MustCompile("^\\s*([a-zA-Z0-9_./-]+(?:\\s+[^&;|`\n]*)*)")
	roleLinePattern     = regexp.MustCompile(`(?i)^(User:|Assistant:)`)
)

// conversationalTrailers are known filler openings the model wraps answers
// in despite instructions. Everything from the first match onward is cut.
var conversationalTrailers = []*regexp.Regexp{
	regexp.MustCompile(`(?is)That covers.*`),
	regexp.MustCompile(`(?is)Here is the command.*`),
	regexp.MustCompile(`(?is)The command is.*`),
	regexp.MustCompile(`(?is)Here's the command.*`),
	regexp.MustCompile(`(?is)This is the command.*`),
	regexp.MustCompile(`(?is)I can only provide raw shell commands.*`),
	regexp.MustCompile(`(?is)Feel free to ask.*`),
	regexp.MustCompile(`(?is)Just remember that I can only provide raw commands.*`),
	regexp.MustCompile(`(?is)Keep in mind that I can only provide raw shell commands.*`),
	regexp.MustCompile(`(?is)If you need help with more specific tasks.*`),
	regexp.MustCompile(`(?is)Please find the command below.*`),
	regexp.MustCompile(`(?is)The requested command is.*`),
	regexp.MustCompile(`(?is)Here you go.*`),
	regexp.MustCompile(`(?is)Here's what you asked for.*`),
	regexp.MustCompile(`(?is)As per your request.*`),
	regexp.MustCompile(`(?is)This should do the trick.*`),
	regexp.MustCompile("(?s)```.*?```"),
}

// CleanResponse recovers a bare command from raw model output. Best-effort
// and deliberately under-triggering: unhelpful-but-safe output beats
// grabbing the wrong substring.
func CleanResponse(raw string) string {
	raw = strings.TrimSpace(raw)

	clean := raw
	if match := fencedBlockPattern.FindStringSubmatch(raw); match != nil {
		clean = strings.TrimSpace(match[1])
	}

	clean = strings.TrimSpace(roleEchoPattern.ReplaceAllString(clean, ""))
	clean = strings.TrimSpace(newlineRunPattern.ReplaceAllString(clean, " "))

	if match := commandShapePattern.FindStringSubmatch(clean); match != nil {
		clean = strings.TrimSpace(match[1])
	} else {
		for _, trailer := range conversationalTrailers {
			clean = strings.TrimSpace(trailer.ReplaceAllString(clean, ""))
		}
	}

	clean = stripQuotes(clean)

	if clean == "" {
		clean = stripQuotes(lastPlainLine(raw))
	}
	return clean
}

func stripQuotes(text string) string {
	return strings.TrimSpace(strings.Trim(strings.Trim(strings.TrimSpace(text), `"`), `'`))
}

// lastPlainLine scans the raw response in reverse for the last non-empty
// line that is not a role echo.
func lastPlainLine(raw string) string {
	lines := strings.Split(raw, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || roleLinePattern.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}
