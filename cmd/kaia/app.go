package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/config"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/dataview"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/memory"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/planner"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/rag"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/scripts"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/shell"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/store"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/sysinfo"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/toolbox"
)

const maxErrorLength = 200

// Response is one dispatched turn's outcome, logged to interaction history.
type Response struct {
	Message  string
	Type     string
	Streamed bool
}

type intentPlanner interface {
	Plan(ctx context.Context, utterance string) planner.Plan
}

type commandGenerator interface {
	Generate(ctx context.Context, intent string) (string, error)
}

type commandRunner interface {
	Run(ctx context.Context, command string) (string, string, error)
	Chdir(target string) error
	WorkDir() string
}

type knowledgeIndex interface {
	Query(ctx context.Context, question string, onToken func(string)) (string, error)
}

type chatStreamer interface {
	Stream(ctx context.Context, model, system, user string, onToken func(string)) (string, error)
}

type scriptRunner interface {
	Run(ctx context.Context, name string) scripts.Result
}

type videoConverter interface {
	Convert(ctx context.Context) toolbox.Result
}

type sqlEngine interface {
	Query(ctx context.Context, question string) (string, []string, error)
}

type statusReporter interface {
	Capture(ctx context.Context, dbStatus sysinfo.StoreStatus) sysinfo.Snapshot
}

type personaSource interface {
	SystemPrompt() string
	Content() string
}

// App holds every wired subsystem. Dispatch routes one utterance through
// the planner and the matching handler; it never returns an error, only a
// Response, so a single bad turn cannot kill the loop.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	planner    intentPlanner
	store      *store.Store
	generator  commandGenerator
	gate       *shell.Gate
	runner     commandRunner
	scripts    scriptRunner
	converter  videoConverter
	knowledge  knowledgeIndex
	chat       chatStreamer
	chatModel  string
	sql        sqlEngine
	status     statusReporter
	persona    personaSource
	memory     *memory.Store
	memoryPath string
	confirm    func(command, source string) bool
	choose     func(intent string, candidates []candidate) (candidate, bool)
	onToken    func(string)
}

// candidate is one pickable command when memory and generation disagree.
type candidate struct {
	Label   string
	Command string
	Source  string
}

func (a *App) Dispatch(ctx context.Context, input string) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panicked", zap.Any("panic", r), zap.String("input", input))
			resp = Response{Message: systemError(fmt.Sprint(r)), Type: "system_error"}
		}
	}()

	plan := a.planner.Plan(ctx, input)
	a.logger.Debug("planned action", zap.String("action", string(plan.Action)), zap.String("content", plan.Content))

	switch plan.Action {
	case planner.ActionStoreData:
		return a.handleStoreData(plan.Content)
	case planner.ActionRetrieveData:
		return a.handleRetrieveData(plan.Content)
	case planner.ActionSQL:
		return a.handleSQL(ctx, plan.Content)
	case planner.ActionSystemStatus:
		return a.handleSystemStatus(ctx)
	case planner.ActionPersona:
		return Response{Message: a.persona.Content(), Type: "persona_content"}
	case planner.ActionKnowledgeQuery:
		return a.handleKnowledgeQuery(ctx, plan.Content)
	case planner.ActionCommand:
		return a.handleCommand(ctx, plan.Content)
	case planner.ActionRunScript:
		result := a.scripts.Run(ctx, plan.Content)
		return Response{Message: result.Message, Type: result.ResponseType}
	case planner.ActionConvertVideo:
		result := a.converter.Convert(ctx)
		return Response{Message: result.Message, Type: result.ResponseType}
	default:
		return a.handleChat(ctx, plan.Content)
	}
}

// DispatchDirect handles a "/" or "!" prefixed line with the marker
// already stripped: status and forget are built-ins, anything else goes
// straight through the gate as a typed command without consulting the
// planner.
func (a *App) DispatchDirect(ctx context.Context, rest string) Response {
	lower := strings.ToLower(rest)
	if lower == "status" {
		return a.handleSystemStatus(ctx)
	}
	if lower == "forget" || strings.HasPrefix(lower, "forget ") {
		return a.handleForget(strings.TrimSpace(rest[len("forget"):]))
	}
	return a.executeCommand(ctx, rest, rest, "typed")
}

func (a *App) handleForget(intent string) Response {
	if intent == "" {
		return Response{Message: "usage: /forget <request>", Type: "memory_forget"}
	}
	removed := 0
	if a.memory != nil {
		removed = a.memory.ForgetIntent(intent)
	}
	if removed == 0 {
		return Response{Message: "No remembered commands match: " + intent, Type: "memory_forget"}
	}
	a.saveMemory()
	return Response{Message: fmt.Sprintf("Forgot %d remembered command(s) for: %s", removed, intent), Type: "memory_forget"}
}

func (a *App) handleStoreData(content string) Response {
	message, err := a.store.StoreFromText(content)
	if err != nil {
		return Response{Message: systemError(err.Error()), Type: "data_storage_failed"}
	}
	return Response{Message: message, Type: "data_storage"}
}

func (a *App) handleRetrieveData(content string) Response {
	category := dataview.Categorize(content)
	result, err := a.store.Retrieve(category)
	if err != nil {
		return Response{Message: systemError(err.Error()), Type: "data_retrieval_failed"}
	}
	message := result.Message
	if len(result.Rows) > 0 {
		message += "\n" + strings.Join(result.Rows, "\n")
	}
	return Response{Message: message, Type: result.ResponseType}
}

func (a *App) handleSQL(ctx context.Context, content string) Response {
	if !a.cfg.Features.SQLQueries || a.sql == nil {
		return Response{Message: "SQL queries are disabled.", Type: "sql_disabled"}
	}
	sqlText, rows, err := a.sql.Query(ctx, content)
	if err != nil {
		return Response{Message: systemError(err.Error()), Type: "sql_query_failed"}
	}
	message := "Query: " + sqlText
	if len(rows) > 0 {
		message += "\n" + strings.Join(rows, "\n")
	}
	return Response{Message: message, Type: "sql_query"}
}

func (a *App) handleSystemStatus(ctx context.Context) Response {
	dbStatus := a.store.Status()
	snapshot := a.status.Capture(ctx, sysinfo.StoreStatus{
		Connected: dbStatus.Connected,
		Tables:    dbStatus.Tables,
	})
	return Response{Message: sysinfo.Format(snapshot), Type: "system_status"}
}

func (a *App) handleKnowledgeQuery(ctx context.Context, content string) Response {
	if a.knowledge != nil {
		answer, err := a.knowledge.Query(ctx, content, a.onToken)
		if err == nil {
			return Response{Message: answer, Type: "knowledge_query", Streamed: true}
		}
		if err != rag.ErrUnavailable {
			a.logger.Warn("knowledge query failed, falling back to chat", zap.Error(err))
		}
	}
	return a.handleChat(ctx, content)
}

func (a *App) handleChat(ctx context.Context, content string) Response {
	answer, err := a.chat.Stream(ctx, a.chatModel, a.persona.SystemPrompt(), content, a.onToken)
	if err != nil {
		a.logger.Warn("chat backend unavailable", zap.Error(err))
		return Response{
			Message: "The language model backend is unavailable. Check that Ollama is running, then try again.",
			Type:    "chat_error",
		}
	}
	return Response{Message: answer, Type: "chat", Streamed: true}
}

// handleCommand resolves an intent to a shell command, preferring an exact
// remembered match over a fresh generation, then gates, confirms, and runs
// it. Both remembered and typed commands pass the same gate as generated
// ones.
func (a *App) handleCommand(ctx context.Context, intent string) Response {
	command, source := a.resolveCommand(ctx, intent)
	if command == "" {
		return Response{
			Message: "The language model backend is unavailable and no remembered command matches. Check that Ollama is running.",
			Type:    "command_error",
		}
	}
	return a.executeCommand(ctx, intent, command, source)
}

// resolveCommand prefers an exact remembered match, then a fresh
// generation. When both a generated command and similar remembered ones
// exist, the choose hook (a picker when wired) settles it.
func (a *App) resolveCommand(ctx context.Context, intent string) (string, string) {
	var matches []memory.Match
	if a.memory != nil {
		matches = a.memory.Search(intent, 3)
		for _, match := range matches {
			if match.Exact {
				return match.Command, "remembered"
			}
		}
	}

	command, err := a.generator.Generate(ctx, intent)
	if err != nil {
		a.logger.Warn("command generation failed", zap.Error(err))
		if len(matches) > 0 {
			return matches[0].Command, "remembered"
		}
		return "", ""
	}

	if len(matches) > 0 && a.choose != nil {
		candidates := []candidate{{Label: "[generated] " + command, Command: command, Source: "generated"}}
		for _, match := range matches {
			candidates = append(candidates, candidate{
				Label:   "[remembered] " + match.Command,
				Command: match.Command,
				Source:  "remembered",
			})
		}
		if picked, ok := a.choose(intent, candidates); ok && picked.Command != "" {
			a.reinforceChoice(picked, matches)
			return picked.Command, picked.Source
		}
	}
	return command, "generated"
}

// executeCommand is the shared tail for planned and user-typed commands.
func (a *App) executeCommand(ctx context.Context, intent, command, source string) Response {
	verdict := a.gate.Check(command)
	if !verdict.Allowed {
		return Response{
			Message: fmt.Sprintf("Command rejected: %s\n  %s", verdict.Reason, command),
			Type:    "command_rejected",
		}
	}

	if !a.confirm(command, source) {
		return Response{Message: "Command cancelled: " + command, Type: "command_cancelled"}
	}

	if target, ok := strings.CutPrefix(command, "cd"); ok && (target == "" || strings.HasPrefix(target, " ")) {
		if err := a.runner.Chdir(strings.TrimSpace(target)); err != nil {
			return Response{Message: systemError(err.Error()), Type: "command_error"}
		}
		return Response{Message: "Working directory: " + a.runner.WorkDir(), Type: "command"}
	}

	stdout, stderr, err := a.runner.Run(ctx, command)
	success := err == nil
	a.learnCommand(intent, command, success)

	if err != nil {
		message := fmt.Sprintf("Command failed: %v", err)
		if stderr != "" {
			message += "\n" + stderr
		}
		if stdout != "" {
			message += "\n" + stdout
		}
		return Response{Message: message, Type: "command_failed"}
	}

	message := command
	if stdout != "" {
		message += "\n" + stdout
	}
	if stderr != "" {
		message += "\n" + stderr
	}
	return Response{Message: message, Type: "command"}
}

// reinforceChoice feeds the picker outcome back into command memory: a
// remembered pick gains score, the top remembered match loses score when
// the generated command wins over it.
func (a *App) reinforceChoice(picked candidate, matches []memory.Match) {
	if a.memory == nil || len(matches) == 0 {
		return
	}
	var err error
	if picked.Source == "remembered" {
		for _, match := range matches {
			if match.Command == picked.Command {
				err = a.memory.Promote(match.Intent, match.Command)
				break
			}
		}
	} else {
		err = a.memory.Demote(matches[0].Intent, matches[0].Command)
	}
	if err != nil {
		a.logger.Warn("could not update command memory", zap.Error(err))
		return
	}
	a.saveMemory()
}

func (a *App) learnCommand(intent, command string, success bool) {
	if a.memory == nil || strings.TrimSpace(intent) == "" {
		return
	}
	if err := a.memory.Learn(intent, command, success); err != nil {
		a.logger.Warn("could not update command memory", zap.Error(err))
		return
	}
	a.saveMemory()
}

func (a *App) saveMemory() {
	if a.memory == nil || a.memoryPath == "" {
		return
	}
	if err := memory.Save(a.memoryPath, *a.memory); err != nil {
		a.logger.Warn("could not persist command memory", zap.Error(err))
	}
}

// logTurn records the interaction, redacting secrets from both sides when
// configured.
func (a *App) logTurn(input string, resp Response) {
	query, message := input, resp.Message
	if a.cfg.Safety.RedactSecrets {
		query = shell.RedactText(query)
		message = shell.RedactText(message)
	}
	if err := a.store.LogInteraction(query, message, resp.Type); err != nil {
		a.logger.Warn("could not log interaction", zap.Error(err))
	}
}

func systemError(detail string) string {
	detail = strings.TrimSpace(detail)
	if len(detail) > maxErrorLength {
		detail = detail[:maxErrorLength] + "..."
	}
	return "System error: " + detail
}
