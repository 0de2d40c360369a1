package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/ollama"
)

type Action string

const (
	ActionCommand        Action = "command"
	ActionKnowledgeQuery Action = "knowledge_query"
	ActionSQL            Action = "sql"
	ActionRetrieveData   Action = "retrieve_data"
	ActionStoreData      Action = "store_data"
	ActionSystemStatus   Action = "system_status"
	ActionPersona        Action = "get_persona_content"
	ActionChat           Action = "chat"
	ActionRunScript      Action = "run_script"
	ActionConvertVideo   Action = "convert_video"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCommand, ActionKnowledgeQuery, ActionSQL, ActionRetrieveData,
		ActionStoreData, ActionSystemStatus, ActionPersona, ActionChat,
		ActionRunScript, ActionConvertVideo:
		return true
	default:
		return false
	}
}

// Plan is the per-turn routing decision. Content is action-specific payload
// text; for actions that carry no payload it echoes the utterance.
type Plan struct {
	Action  Action
	Content string
}

// Classifier is the JSON-mode chat completion the primary path needs.
type Classifier interface {
	ChatJSON(ctx context.Context, model, system string, shots []ollama.Exchange, user string) (string, error)
}

type Planner struct {
	llm    Classifier
	model  string
	logger *zap.Logger
}

func New(llm Classifier, model string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: llm, model: model, logger: logger}
}

// Plan classifies an utterance. It never fails: any classifier error drops
// to the deterministic keyword fallback, and any unusable classifier output
// coerces to chat with the original utterance.
func (p *Planner) Plan(ctx context.Context, utterance string) Plan {
	plan, err := p.classify(ctx, utterance)
	if err != nil {
		p.logger.Debug("classifier unavailable, using keyword fallback",
			zap.String("utterance", utterance), zap.Error(err))
		return Fallback(utterance)
	}
	return plan
}

func (p *Planner) classify(ctx context.Context, utterance string) (Plan, error) {
	if p.llm == nil {
		return Plan{}, fmt.Errorf("no classifier backend configured")
	}
	raw, err := p.llm.ChatJSON(ctx, p.model, actionPlanSystemPrompt, actionPlanShots, utterance)
	if err != nil {
		return Plan{}, err
	}
	return parsePlan(raw, utterance)
}

// parsePlan extracts a plan from raw classifier output. Extraction is
// tolerant of leading prose before the JSON object; anything without a
// parseable object is an error so the caller falls back. A parseable
// object with an unknown or absent action coerces to chat.
func parsePlan(raw, utterance string) (Plan, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return Plan{}, fmt.Errorf("classifier output contains no JSON object")
	}

	var payload struct {
		Action  string `json:"action"`
		Content any    `json:"content"`
	}
	decoder := json.NewDecoder(strings.NewReader(raw[start:]))
	if err := decoder.Decode(&payload); err != nil {
		return Plan{}, fmt.Errorf("could not parse classifier output: %w", err)
	}

	action := Action(strings.TrimSpace(strings.ToLower(payload.Action)))
	if !action.Valid() {
		return Plan{Action: ActionChat, Content: utterance}, nil
	}
	return Plan{Action: action, Content: contentString(payload.Content, utterance)}, nil
}

func contentString(value any, fallback string) string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return fallback
		}
		return strings.Join(parts, " ")
	default:
		return fallback
	}
}

type fallbackRule struct {
	action   Action
	keywords []string
}

// fallbackRules are evaluated in order against the lower-cased utterance;
// the first rule with any substring hit wins.
var fallbackRules = []fallbackRule{
	{ActionKnowledgeQuery, []string{
		"what is", "who is", "explain", "tell me about", "according to",
		"summarize", "synopsis of", "list all the books", "pull text from",
	}},
	{ActionCommand, []string{
		"list files", "show contents", "run command", "ls ", "cd ",
	}},
	{ActionRetrieveData, []string{
		"list my facts", "list history", "show interaction history",
		"what do you know about me", "my preferences",
	}},
	{ActionSystemStatus, []string{
		"status", "how is my computer doing", "system info", "show system status",
		"kaia status",
	}},
	{ActionConvertVideo, []string{
		"convert video", "make a gif", "video to gif",
	}},
}

// Fallback is the deterministic keyword classifier used when the model
// backend is degraded or absent. Pure function of the rule tables.
func Fallback(utterance string) Plan {
	lower := strings.ToLower(utterance)

	for _, rule := range fallbackRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return Plan{Action: rule.action, Content: utterance}
			}
		}
	}

	if hasScriptShape(lower) {
		return Plan{Action: ActionRunScript, Content: stripScriptVerb(utterance)}
	}

	return Plan{Action: ActionChat, Content: utterance}
}

// stripScriptVerb removes a leading run/execute verb; interior verbs stay
// part of the script reference.
func stripScriptVerb(utterance string) string {
	content := strings.TrimSpace(utterance)
	lower := strings.ToLower(content)
	for _, verb := range []string{"run ", "execute "} {
		if strings.HasPrefix(lower, verb) {
			return strings.TrimSpace(content[len(verb):])
		}
	}
	return content
}

func hasScriptShape(lower string) bool {
	hasVerb := strings.Contains(lower, "run ") || strings.Contains(lower, "execute ")
	hasExt := strings.Contains(lower, ".sh") || strings.Contains(lower, ".py")
	return hasVerb && hasExt
}
