package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/config"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/logging"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/memory"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/ollama"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/persona"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/planner"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/rag"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/scripts"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/shell"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/sqlquery"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/store"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/sysinfo"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/toolbox"
	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/ui"
)

var version = "dev"

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

type options struct {
	Model      string
	Host       string
	UI         string
	Offline    bool
	Yes        bool
	Quiet      bool
	ShowConfig bool
	Doctor     bool
	Version    bool
}

func main() {
	opts, prompt, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaia: could not load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, opts)

	if opts.ShowConfig {
		handleShowConfig(cfg, cfgPath)
		return
	}

	logger, err := logging.New(cfg.Features.FileLog, cfg.Features.DebugLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaia: could not open log: %v\n", err)
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	app, cleanup, err := buildApp(cfg, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaia: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if opts.Doctor {
		handleDoctor(cfg, app)
		return
	}

	ctx := context.Background()
	if prompt != "" {
		if rest, ok := directCommand(prompt); ok {
			runDirect(ctx, app, cfg, prompt, rest)
		} else {
			runTurn(ctx, app, cfg, opts, prompt)
		}
		return
	}
	runREPL(ctx, app, cfg, opts)
}

func parseArgs(args []string) (options, string, error) {
	fs := flag.NewFlagSet("kaia", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts options
	fs.StringVar(&opts.Model, "model", "", "override chat model for this invocation")
	fs.StringVar(&opts.Host, "host", "", "override ollama host for this invocation")
	fs.StringVar(&opts.UI, "ui", "", "override ui backend: auto|bubbletea|huh|tview|plain")
	fs.BoolVar(&opts.Offline, "offline", false, "skip the language model backend entirely")
	fs.BoolVar(&opts.Yes, "yes", false, "auto-confirm command execution prompts")
	fs.BoolVar(&opts.Quiet, "quiet", false, "suppress the banner and streaming decoration")
	fs.BoolVar(&opts.ShowConfig, "show-config", false, "show effective settings and exit")
	fs.BoolVar(&opts.Doctor, "doctor", false, "run diagnostic checks and exit")
	fs.BoolVar(&opts.Version, "version", false, "print version")

	if err := fs.Parse(args); err != nil {
		return options{}, "", err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	return opts, prompt, nil
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.Model != "" {
		_ = cfg.Set("ollama.chat_model", opts.Model)
	}
	if opts.Host != "" {
		_ = cfg.Set("ollama.host", opts.Host)
	}
	if opts.UI != "" {
		_ = cfg.Set("ui.backend", opts.UI)
	}
}

func buildApp(cfg config.Config, opts options, logger *zap.Logger) (*App, func(), error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}
	personalStore, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open personal database: %w", err)
	}

	client := ollama.New(ollama.Config{
		Host:           cfg.Ollama.Host,
		ChatModel:      cfg.Ollama.ChatModel,
		CommandModel:   cfg.Ollama.CommandModel,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
		FallbackModels: cfg.Ollama.FallbackModels,
		Timeout:        time.Duration(cfg.Ollama.TimeoutSeconds) * time.Second,
		Offline:        opts.Offline,
	})

	ctx := context.Background()
	chatModel := client.ResolveModel(ctx, cfg.Ollama.ChatModel)
	commandModel := client.ResolveModel(ctx, cfg.Ollama.CommandModel)

	kaiaPersona := persona.Load([]string{cfg.Paths.PersonalDir, cfg.Paths.KnowledgeDir}, logger)

	var knowledge knowledgeIndex
	if indexPath, err := cfg.VectorIndexPath(); err == nil {
		index, err := rag.Open(ctx, indexPath, client, client, chatModel, kaiaPersona.Content(), logger)
		if err != nil {
			logger.Warn("knowledge index unavailable, continuing without retrieval", zap.Error(err))
		} else {
			if added, err := index.Ingest(ctx, []string{cfg.Paths.KnowledgeDir, cfg.Paths.PersonalDir}); err != nil {
				logger.Warn("document ingestion failed", zap.Error(err))
			} else if added > 0 {
				logger.Info("indexed documents", zap.Int("chunks", added))
			}
			knowledge = index
		}
	}

	gate := shell.NewGate(cfg.Safety.AllowedCommands)
	runner := shell.NewRunner(time.Duration(cfg.Ollama.TimeoutSeconds) * time.Second)
	generator := shell.NewGenerator(client, commandModel, gate, logger)

	commandMemory, memoryPath, err := memory.Load()
	if err != nil {
		logger.Warn("could not load command memory", zap.Error(err))
		commandMemory = memory.Store{}
	}

	home, _ := os.UserHomeDir()
	scriptDirs := []string{cfg.Paths.ScriptsDir}
	if home != "" && home != cfg.Paths.ScriptsDir {
		scriptDirs = append(scriptDirs, home)
	}

	pick := func(files []string) (string, bool) {
		pickerOptions := make([]ui.Option, 0, len(files))
		for _, file := range files {
			pickerOptions = append(pickerOptions, ui.Option{Value: file})
		}
		selected, handled, err := ui.Select(cfg.UI.Backend, "Select a video to convert", pickerOptions)
		if err != nil || !handled {
			return pickPlain(files)
		}
		return selected.Value, selected.Value != ""
	}

	sink := newStreamSink(os.Stdout, cfg.UI.MaxWidth)

	app := &App{
		cfg:        cfg,
		logger:     logger,
		planner:    planner.New(client, chatModel, logger),
		store:      personalStore,
		generator:  generator,
		gate:       gate,
		runner:     runner,
		scripts:    scripts.New(scriptDirs, cfg.Safety.AllowedScripts, cfg.Safety.BlockedScripts, runner, logger),
		converter:  toolbox.New(cfg.Paths.DownloadsDir, runner, pick, logger),
		knowledge:  knowledge,
		chat:       client,
		chatModel:  chatModel,
		sql:        sqlquery.New(personalStore.DB(), client, commandModel, logger),
		status:     sysinfo.New(cfg.Status.DiskMounts, client, logger),
		persona:    kaiaPersona,
		memory:     &commandMemory,
		memoryPath: memoryPath,
		confirm:    makeConfirm(cfg.UI.Backend, opts.Yes),
		choose:     makeChoose(cfg.UI.Backend, opts.Yes),
		onToken:    sink.Write,
	}
	cleanup := func() {
		sink.Flush()
		_ = personalStore.Close()
	}
	return app, cleanup, nil
}

// makeChoose presents generated-vs-remembered command candidates. With
// --yes there is nothing to ask; the generated command stands.
func makeChoose(backend string, autoYes bool) func(intent string, candidates []candidate) (candidate, bool) {
	return func(intent string, candidates []candidate) (candidate, bool) {
		if autoYes || len(candidates) < 2 {
			return candidate{}, false
		}
		pickerOptions := make([]ui.Option, 0, len(candidates))
		byValue := make(map[string]candidate, len(candidates))
		for _, c := range candidates {
			pickerOptions = append(pickerOptions, ui.Option{Label: c.Label, Value: c.Command})
			if _, exists := byValue[c.Command]; !exists {
				byValue[c.Command] = c
			}
		}
		selected, handled, err := ui.Select(backend, "Choose command for: "+intent, pickerOptions)
		if err != nil || !handled || selected.Value == "" {
			return candidate{}, false
		}
		return byValue[selected.Value], true
	}
}

func makeConfirm(backend string, autoYes bool) func(command, source string) bool {
	return func(command, source string) bool {
		if autoYes {
			return true
		}
		approved, handled, err := ui.ConfirmExecution(backend, command, source)
		if err == nil && handled {
			return approved
		}
		fmt.Printf("Run %q [y/N]? ", command)
		reader := bufio.NewReader(os.Stdin)
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func pickPlain(files []string) (string, bool) {
	fmt.Println("Select a file to convert:")
	for i, file := range files {
		fmt.Printf("%d) %s\n", i+1, file)
	}
	fmt.Print("Enter the number of the file: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false
	}
	choice := strings.TrimSpace(line)
	for i, file := range files {
		if choice == fmt.Sprint(i+1) {
			return file, true
		}
	}
	return "", false
}

func runREPL(ctx context.Context, app *App, cfg config.Config, opts options) {
	if !opts.Quiet {
		fmt.Println(promptStyle.Render("Kaia") + faintStyle.Render(" — type /help for commands, exit to quit"))
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit", "/exit", "/quit":
			return
		}
		if rest, ok := directCommand(input); ok {
			runDirect(ctx, app, cfg, input, rest)
			continue
		}
		runTurn(ctx, app, cfg, opts, input)
	}
}

// directCommand reports whether a line is a direct command and strips its
// "/" or "!" marker. A doubled "/!" marker is tolerated.
func directCommand(input string) (string, bool) {
	if input == "" || (input[0] != '/' && input[0] != '!') {
		return "", false
	}
	rest := strings.TrimSpace(input[1:])
	if strings.HasPrefix(rest, "!") {
		rest = strings.TrimSpace(rest[1:])
	}
	return rest, true
}

// runDirect answers a "/" or "!" prefixed line. help stays local to the
// REPL; everything else goes through the dispatcher's direct path.
func runDirect(ctx context.Context, app *App, cfg config.Config, raw, rest string) {
	if rest == "" || strings.EqualFold(rest, "help") {
		printHelp()
		return
	}
	resp := app.DispatchDirect(ctx, rest)
	printResponse(resp)
	speak(cfg, resp)
	app.logTurn(raw, resp)
}

func runTurn(ctx context.Context, app *App, cfg config.Config, opts options, input string) {
	resp := app.Dispatch(ctx, input)
	printResponse(resp)
	speak(cfg, resp)
	app.logTurn(input, resp)
}

func printResponse(resp Response) {
	if resp.Streamed {
		// Tokens already reached the terminal through the stream sink.
		fmt.Println()
		return
	}
	style := replyStyle
	switch resp.Type {
	case "system_error", "command_rejected", "command_failed", "chat_error",
		"script_error", "script_interactive_error", "video_conversion_error",
		"data_storage_failed", "data_retrieval_failed", "sql_query_failed":
		style = errorStyle
	}
	fmt.Println(style.Render(resp.Message))
}

// speak pipes the response through spd-say when TTS is enabled. Failures
// are ignored; speech is best effort.
func speak(cfg config.Config, resp Response) {
	if !cfg.Features.TTS || resp.Message == "" {
		return
	}
	if _, err := exec.LookPath("spd-say"); err != nil {
		return
	}
	_ = exec.Command("spd-say", "-w", resp.Message).Run()
}

func printHelp() {
	fmt.Println(`Commands:
  /help            show this help
  /status          show system status
  /forget <text>   drop remembered commands for a request
  /<command>       run a shell command through the safety gate
  ! <command>      same as /<command>
  exit, quit       leave the session

Anything else is interpreted: ask questions, request commands,
store facts ("remember that ..."), or query your data.`)
}

func handleShowConfig(cfg config.Config, cfgPath string) {
	fmt.Println("config: " + cfgPath)
	for _, key := range config.Keys() {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Printf("  %s = %s\n", key, value)
	}
}

func handleDoctor(cfg config.Config, app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	check := func(label string, ok bool, detail string) {
		mark := "ok"
		if !ok {
			mark = "FAIL"
		}
		if detail != "" {
			detail = " (" + detail + ")"
		}
		fmt.Printf("  [%s] %s%s\n", mark, label, detail)
	}

	fmt.Println("kaia doctor")
	dbStatus := app.store.Status()
	check("personal database", dbStatus.Connected, strings.Join(dbStatus.Tables, ", "))

	client, isClient := app.chat.(*ollama.Client)
	if isClient {
		healthy := client.Healthy(ctx)
		check("ollama backend "+cfg.Ollama.Host, healthy, "")
		if healthy {
			tags, err := client.Tags(ctx)
			check("installed models", err == nil && len(tags) > 0, strings.Join(tags, ", "))
		}
	}

	check("knowledge index", app.knowledge != nil, "")
	for _, dir := range []string{cfg.Paths.KnowledgeDir, cfg.Paths.PersonalDir, cfg.Paths.DownloadsDir} {
		info, err := os.Stat(dir)
		check("dir "+dir, err == nil && info.IsDir(), "")
	}
	_, ffmpegErr := exec.LookPath("ffmpeg")
	check("ffmpeg", ffmpegErr == nil, "needed for video conversion")
}
