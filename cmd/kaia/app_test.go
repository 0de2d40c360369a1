package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/config"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/memory"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/planner"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/rag"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/scripts"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/shell"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/store"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/sysinfo"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/toolbox"
	"go.uber.org/zap"
)

type fallbackPlanner struct{}

func (fallbackPlanner) Plan(_ context.Context, utterance string) planner.Plan {
	return planner.Fallback(utterance)
}

type plannerFunc func(string) planner.Plan

func (f plannerFunc) Plan(_ context.Context, utterance string) planner.Plan {
	return f(utterance)
}

type stubGenerator struct {
	command string
	err     error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) {
	return s.command, s.err
}

type stubRunner struct {
	commands []string
	chdirs   []string
	stdout   string
	err      error
}

func (s *stubRunner) Run(_ context.Context, command string) (string, string, error) {
	s.commands = append(s.commands, command)
	return s.stdout, "", s.err
}

func (s *stubRunner) Chdir(target string) error {
	s.chdirs = append(s.chdirs, target)
	return nil
}

func (s *stubRunner) WorkDir() string { return "/home/user" }

type stubScripts struct {
	result scripts.Result
	panics bool
}

func (s stubScripts) Run(context.Context, string) scripts.Result {
	if s.panics {
		panic("script subsystem exploded")
	}
	return s.result
}

type stubConverter struct{ result toolbox.Result }

func (s stubConverter) Convert(context.Context) toolbox.Result { return s.result }

type stubKnowledge struct {
	answer string
	err    error
	asked  int
}

func (s *stubKnowledge) Query(_ context.Context, _ string, onToken func(string)) (string, error) {
	s.asked++
	if s.err != nil {
		return "", s.err
	}
	onToken(s.answer)
	return s.answer, nil
}

type stubChat struct {
	reply string
	err   error
	calls int
}

func (s *stubChat) Stream(_ context.Context, _, _, _ string, onToken func(string)) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	onToken(s.reply)
	return s.reply, nil
}

type stubSQL struct {
	sqlText string
	rows    []string
	err     error
}

func (s stubSQL) Query(context.Context, string) (string, []string, error) {
	return s.sqlText, s.rows, s.err
}

type stubStatus struct{}

func (stubStatus) Capture(_ context.Context, db sysinfo.StoreStatus) sysinfo.Snapshot {
	return sysinfo.Snapshot{OS: "arch rolling", DBConnected: db.Connected, DBTables: db.Tables}
}

type stubPersona struct{}

func (stubPersona) SystemPrompt() string { return "system prompt" }
func (stubPersona) Content() string      { return "persona content" }

func newTestApp(t *testing.T) *App {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kaia_test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.Default()
	return &App{
		cfg:       cfg,
		logger:    zap.NewNop(),
		planner:   fallbackPlanner{},
		store:     s,
		generator: stubGenerator{command: "ls -la"},
		gate:      shell.NewGate(cfg.Safety.AllowedCommands),
		runner:    &stubRunner{stdout: "file.txt"},
		scripts:   stubScripts{result: scripts.Result{Message: "Script executed successfully.", ResponseType: "script_execution"}},
		converter: stubConverter{result: toolbox.Result{Message: "Conversion complete", ResponseType: "video_conversion_success"}},
		chat:      &stubChat{reply: "hello"},
		chatModel: "llama2:7b-chat",
		sql:       stubSQL{sqlText: "SELECT fact_text FROM facts LIMIT 5", rows: []string{"fact_text"}},
		status:    stubStatus{},
		persona:   stubPersona{},
		memory:    &memory.Store{},
		confirm:   func(string, string) bool { return true },
		onToken:   func(string) {},
	}
}

func TestDispatchSurvivesBackendOutage(t *testing.T) {
	app := newTestApp(t)
	app.generator = stubGenerator{err: errors.New("connection refused")}
	app.chat = &stubChat{err: errors.New("connection refused")}

	utterances := []string{
		"hello there",
		"list files in my home directory",
		"what is the capital of France",
		"remember that I use zsh",
		"what are my preferences",
		"show system status",
		"run backup.sh",
		"convert video to gif",
		"what do you know about me",
		"how is my computer doing",
	}
	for _, utterance := range utterances {
		resp := app.Dispatch(context.Background(), utterance)
		if resp.Message == "" {
			t.Fatalf("empty response for %q", utterance)
		}
		if resp.Type == "" {
			t.Fatalf("missing response type for %q", utterance)
		}
	}
}

func TestDispatchStoreAndRetrieveRoundTrip(t *testing.T) {
	app := newTestApp(t)
	app.planner = plannerFunc(func(utterance string) planner.Plan {
		if strings.HasPrefix(utterance, "remember") {
			return planner.Plan{Action: planner.ActionStoreData, Content: utterance}
		}
		return planner.Plan{Action: planner.ActionRetrieveData, Content: utterance}
	})

	resp := app.Dispatch(context.Background(), "remember that my favorite color is teal")
	if resp.Type != "data_storage" {
		t.Fatalf("unexpected store response: %+v", resp)
	}

	resp = app.Dispatch(context.Background(), "what do you know about me")
	if resp.Type != "about_me_retrieved" {
		t.Fatalf("unexpected retrieve response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "teal") {
		t.Fatalf("stored value missing from retrieval: %q", resp.Message)
	}
}

func TestDispatchCommandRunsAfterConfirm(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{stdout: "file.txt"}
	app.runner = runner

	resp := app.Dispatch(context.Background(), "list files in this directory")
	if resp.Type != "command" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "ls -la" {
		t.Fatalf("unexpected commands run: %v", runner.commands)
	}
	if !strings.Contains(resp.Message, "file.txt") {
		t.Fatalf("command output missing: %q", resp.Message)
	}
	if len(app.memory.Entries) != 1 {
		t.Fatalf("successful run must be learned, entries=%d", len(app.memory.Entries))
	}
}

func TestDispatchCommandCancelled(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner
	app.confirm = func(string, string) bool { return false }

	resp := app.Dispatch(context.Background(), "list files here")
	if resp.Type != "command_cancelled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 0 {
		t.Fatal("cancelled command must not run")
	}
}

func TestExecuteCommandGatesTypedInput(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner

	resp := app.executeCommand(context.Background(), "wipe", "rm -rf /", "typed")
	if resp.Type != "command_rejected" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 0 {
		t.Fatal("rejected command must not run")
	}
}

func TestExecuteCommandHandlesChdir(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner

	resp := app.executeCommand(context.Background(), "go home", "cd /tmp", "generated")
	if resp.Type != "command" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.chdirs) != 1 || runner.chdirs[0] != "/tmp" {
		t.Fatalf("unexpected chdirs: %v", runner.chdirs)
	}
	if len(runner.commands) != 0 {
		t.Fatal("cd must not spawn a child process")
	}
}

func TestDispatchRemembersExactCommand(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner
	app.generator = stubGenerator{err: errors.New("backend down")}
	if err := app.memory.Learn("list files in this directory", "ls -la", true); err != nil {
		t.Fatalf("learn: %v", err)
	}

	resp := app.Dispatch(context.Background(), "list files in this directory")
	if resp.Type != "command" {
		t.Fatalf("remembered command must run without backend: %+v", resp)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "ls -la" {
		t.Fatalf("unexpected commands: %v", runner.commands)
	}
}

func TestExecuteCommandConfirmsBeforeChdir(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner
	app.confirm = func(string, string) bool { return false }

	resp := app.executeCommand(context.Background(), "go to tmp", "cd /tmp", "generated")
	if resp.Type != "command_cancelled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.chdirs) != 0 {
		t.Fatal("declined cd must not change the working directory")
	}
}

func TestDirectCommandPrefixes(t *testing.T) {
	cases := []struct {
		input string
		rest  string
		ok    bool
	}{
		{"/ls -la", "ls -la", true},
		{"! df -h", "df -h", true},
		{"/! uptime", "uptime", true},
		{"/status", "status", true},
		{"/", "", true},
		{"hello there", "", false},
	}
	for _, tc := range cases {
		rest, ok := directCommand(tc.input)
		if ok != tc.ok || rest != tc.rest {
			t.Fatalf("directCommand(%q) = %q, %v, want %q, %v", tc.input, rest, ok, tc.rest, tc.ok)
		}
	}
}

func TestDirectStatusBypassesPlanner(t *testing.T) {
	app := newTestApp(t)
	app.planner = plannerFunc(func(string) planner.Plan {
		t.Fatal("direct commands must not consult the planner")
		return planner.Plan{}
	})

	resp := app.DispatchDirect(context.Background(), "status")
	if resp.Type != "system_status" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDirectCommandRunsThroughGate(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{stdout: "ok"}
	app.runner = runner
	app.planner = plannerFunc(func(string) planner.Plan {
		t.Fatal("direct commands must not consult the planner")
		return planner.Plan{}
	})

	resp := app.DispatchDirect(context.Background(), "ls -la")
	if resp.Type != "command" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "ls -la" {
		t.Fatalf("unexpected commands: %v", runner.commands)
	}

	resp = app.DispatchDirect(context.Background(), "rm -rf /")
	if resp.Type != "command_rejected" {
		t.Fatalf("gate must cover direct commands: %+v", resp)
	}
}

func TestDirectForgetDropsRememberedCommands(t *testing.T) {
	app := newTestApp(t)
	if err := app.memory.Learn("update system packages", "sudo pacman -Syu", true); err != nil {
		t.Fatalf("learn: %v", err)
	}

	resp := app.DispatchDirect(context.Background(), "forget update system packages")
	if resp.Type != "memory_forget" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "Forgot 1") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if len(app.memory.Entries) != 0 {
		t.Fatalf("entries must be removed, have %d", len(app.memory.Entries))
	}
}

func scoreFor(t *testing.T, app *App, intent string) float64 {
	t.Helper()
	for _, entry := range app.memory.Entries {
		if entry.Intent == intent {
			return entry.Score
		}
	}
	t.Fatalf("no memory entry for %q", intent)
	return 0
}

func TestPickerRememberedChoicePromotes(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner
	app.generator = stubGenerator{command: "df -h -T"}
	if err := app.memory.Learn("show disk usage", "df -h", true); err != nil {
		t.Fatalf("learn: %v", err)
	}
	before := scoreFor(t, app, "show disk usage")
	app.choose = func(_ string, candidates []candidate) (candidate, bool) {
		for _, c := range candidates {
			if c.Source == "remembered" {
				return c, true
			}
		}
		return candidate{}, false
	}

	resp := app.Dispatch(context.Background(), "list files using disk usage")
	if resp.Type != "command" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "df -h" {
		t.Fatalf("remembered pick must run: %v", runner.commands)
	}
	if after := scoreFor(t, app, "show disk usage"); after <= before {
		t.Fatalf("remembered pick must raise the score: %v -> %v", before, after)
	}
}

func TestPickerGeneratedChoiceDemotes(t *testing.T) {
	app := newTestApp(t)
	runner := &stubRunner{}
	app.runner = runner
	app.generator = stubGenerator{command: "df -h -T"}
	if err := app.memory.Learn("show disk usage", "df -h", true); err != nil {
		t.Fatalf("learn: %v", err)
	}
	before := scoreFor(t, app, "show disk usage")
	app.choose = func(_ string, candidates []candidate) (candidate, bool) {
		return candidates[0], true
	}

	resp := app.Dispatch(context.Background(), "list files using disk usage")
	if resp.Type != "command" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "df -h -T" {
		t.Fatalf("generated pick must run: %v", runner.commands)
	}
	if after := scoreFor(t, app, "show disk usage"); after >= before {
		t.Fatalf("passed-over match must lose score: %v -> %v", before, after)
	}
}

func TestDispatchKnowledgeFallsBackToChat(t *testing.T) {
	app := newTestApp(t)
	knowledge := &stubKnowledge{err: rag.ErrUnavailable}
	chat := &stubChat{reply: "from general knowledge"}
	app.knowledge = knowledge
	app.chat = chat

	resp := app.Dispatch(context.Background(), "what is the meaning of this document")
	if knowledge.asked != 1 {
		t.Fatal("knowledge index must be consulted first")
	}
	if chat.calls != 1 {
		t.Fatal("empty index must fall back to chat")
	}
	if resp.Type != "chat" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	app := newTestApp(t)
	app.scripts = stubScripts{panics: true}

	resp := app.Dispatch(context.Background(), "run backup.sh")
	if resp.Type != "system_error" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "System error:") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestDispatchSQLDisabled(t *testing.T) {
	app := newTestApp(t)
	app.cfg.Features.SQLQueries = false

	resp := app.handleSQL(context.Background(), "count my facts by source")
	if resp.Type != "sql_disabled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSystemErrorTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := systemError(long)
	if len(got) > len("System error: ")+maxErrorLength+3 {
		t.Fatalf("error not truncated: %d chars", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis: %q", got)
	}
}
