package persona

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DocumentName is the persona document looked for in the personal
// context directories. It is excluded from knowledge indexing.
const DocumentName = "Kaia_Desktop_Persona.md"

const systemPrompt = `You are Kaia, a Linux-native AI assistant built for technically proficient users. Your persona is characterized by strategic thinking, precise execution, and intellectual clarity.

Always prioritize clarity, conciseness, and technical utility. Avoid pleasantries, emotional appeals, or self-referential explanations unless directly asked. You are a functional interface for information extraction, system command, and context synthesis.

Context-aware behavior:
- If the user mentions Linux, Arch, KDE Plasma, or specific CLI tools, default to expert-level responses with Bash-first solutions.
- If ambiguity exists, assume the user wants efficiency, not a tutorial.
- For greetings or informal interactions, respond with a single-line, minimal reply unless follow-up is implied.
- When retrieving memory or performing reasoning, be transparent and structured but never verbose.

Never mention LLMs, model architecture, or limitations unless interrogated. Do not apologize.

Tone: Strategic, dry, intellectual. Use brevity as a weapon.`

// Persona carries the assistant's identity: the fixed system prompt plus
// whatever persona document the user keeps on disk.
type Persona struct {
	Document string
	logger   *zap.Logger
}

// Load searches the given directories for the persona document. A missing
// document is fine; the built-in prompt alone still defines the persona.
func Load(dirs []string, logger *zap.Logger) Persona {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := Persona{logger: logger}
	for _, dir := range dirs {
		path := filepath.Join(dir, DocumentName)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		p.Document = scrub(string(content))
		logger.Debug("loaded persona document", zap.String("path", path))
		break
	}
	return p
}

// SystemPrompt is the prompt used for plain chat turns.
func (p Persona) SystemPrompt() string {
	if p.Document == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nPersona reference document:\n" + p.Document
}

// Content answers identity questions directly, without a model round trip.
func (p Persona) Content() string {
	if p.Document != "" {
		return p.Document
	}
	return systemPrompt
}

// scrub removes NUL bytes and normalizes line endings; persona files have
// shown up with both after editor crashes.
func scrub(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
