package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/appdirs"
)

type OllamaConfig struct {
	Host           string   `toml:"host" json:"host"`
	ChatModel      string   `toml:"chat_model" json:"chat_model"`
	CommandModel   string   `toml:"command_model" json:"command_model"`
	EmbeddingModel string   `toml:"embedding_model" json:"embedding_model"`
	FallbackModels []string `toml:"fallback_models,omitempty" json:"fallback_models,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds" json:"timeout_seconds"`
}

type PathsConfig struct {
	KnowledgeDir string `toml:"knowledge_dir" json:"knowledge_dir"`
	PersonalDir  string `toml:"personal_dir" json:"personal_dir"`
	ScriptsDir   string `toml:"scripts_dir" json:"scripts_dir"`
	DownloadsDir string `toml:"downloads_dir" json:"downloads_dir"`
	DatabasePath string `toml:"database_path,omitempty" json:"database_path,omitempty"`
}

type SafetyConfig struct {
	RedactSecrets   bool     `toml:"redact_secrets" json:"redact_secrets"`
	AllowedCommands []string `toml:"allowed_commands" json:"allowed_commands"`
	AllowedScripts  []string `toml:"allowed_scripts" json:"allowed_scripts"`
	BlockedScripts  []string `toml:"blocked_scripts" json:"blocked_scripts"`
}

type StatusConfig struct {
	DiskMounts []string `toml:"disk_mounts" json:"disk_mounts"`
}

type UIConfig struct {
	Backend  string `toml:"backend" json:"backend"`
	MaxWidth int    `toml:"max_width" json:"max_width"`
}

type FeaturesConfig struct {
	SQLQueries bool `toml:"sql_queries" json:"sql_queries"`
	TTS        bool `toml:"tts" json:"tts"`
	FileLog    bool `toml:"file_log" json:"file_log"`
	DebugLog   bool `toml:"debug_log" json:"debug_log"`
}

type Config struct {
	Version  int            `toml:"version" json:"version"`
	Ollama   OllamaConfig   `toml:"ollama" json:"ollama"`
	Paths    PathsConfig    `toml:"paths" json:"paths"`
	Safety   SafetyConfig   `toml:"safety" json:"safety"`
	Status   StatusConfig   `toml:"status" json:"status"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Features FeaturesConfig `toml:"features" json:"features"`
}

// defaultAllowedCommands is the executable allow-list consulted by the
// command safety gate. Head token only; arguments are not policed here.
var defaultAllowedCommands = []string{
	"ls", "cd", "pwd", "echo", "cat", "date", "df", "ps", "find", "grep",
	"pacman", "systemctl", "ip", "nmcli", "plasmashell", "kquitapp5",
	"kstart5", "systemsettings5", "mount", "umount", "lsusb", "lscpu",
	"free", "lsblk", "journalctl", "reboot", "poweroff",
}

var defaultBlockedScripts = []string{
	"kaia_env_setup.sh",
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Version: 1,
		Ollama: OllamaConfig{
			Host:           "http://localhost:11434",
			ChatModel:      "llama2:7b-chat",
			CommandModel:   "mistral:instruct",
			EmbeddingModel: "nomic-embed-text:latest",
			FallbackModels: []string{"llama2:7b-chat", "mistral:instruct"},
			TimeoutSeconds: 300,
		},
		Paths: PathsConfig{
			KnowledgeDir: filepath.Join(home, "kaia", "knowledge"),
			PersonalDir:  filepath.Join(home, "kaia", "personal"),
			ScriptsDir:   home,
			DownloadsDir: filepath.Join(home, "Downloads"),
		},
		Safety: SafetyConfig{
			RedactSecrets:   true,
			AllowedCommands: append([]string(nil), defaultAllowedCommands...),
			AllowedScripts:  []string{},
			BlockedScripts:  append([]string(nil), defaultBlockedScripts...),
		},
		Status: StatusConfig{
			DiskMounts: []string{"/", "/home"},
		},
		UI: UIConfig{
			Backend:  "auto",
			MaxWidth: 80,
		},
		Features: FeaturesConfig{
			SQLQueries: true,
			TTS:        false,
			FileLog:    true,
			DebugLog:   false,
		},
	}
}

func LoadOrCreate() (Config, string, error) {
	path, err := appdirs.ConfigFilePath()
	if err != nil {
		return Config{}, "", err
	}

	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, err := appdirs.EnsureConfigDir(); err != nil {
			return Config{}, "", err
		}
		if err := Save(path, cfg); err != nil {
			return Config{}, "", err
		}
		return cfg, path, nil
	}
	if err != nil {
		return Config{}, "", fmt.Errorf("could not stat config path: %w", err)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, "", fmt.Errorf("could not read config file: %w", err)
	}

	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, "", fmt.Errorf("could not parse config file: %w", err)
	}
	cfg.normalize()
	return cfg, path, nil
}

func Save(path string, cfg Config) error {
	cfg.normalize()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not serialize config: %w", err)
	}
	if _, err := appdirs.EnsureConfigDir(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".kaia-config-*.toml")
	if err != nil {
		return fmt.Errorf("could not create temp config file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}

	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp config file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not secure temp config file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure config file permissions: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()
	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.Ollama.Host) == "" {
		c.Ollama.Host = defaults.Ollama.Host
	}
	c.Ollama.Host = strings.TrimRight(strings.TrimSpace(c.Ollama.Host), "/")
	if strings.TrimSpace(c.Ollama.ChatModel) == "" {
		c.Ollama.ChatModel = defaults.Ollama.ChatModel
	}
	if strings.TrimSpace(c.Ollama.CommandModel) == "" {
		c.Ollama.CommandModel = defaults.Ollama.CommandModel
	}
	if strings.TrimSpace(c.Ollama.EmbeddingModel) == "" {
		c.Ollama.EmbeddingModel = defaults.Ollama.EmbeddingModel
	}
	if len(c.Ollama.FallbackModels) == 0 {
		c.Ollama.FallbackModels = append([]string(nil), defaults.Ollama.FallbackModels...)
	}
	if c.Ollama.TimeoutSeconds <= 0 {
		c.Ollama.TimeoutSeconds = defaults.Ollama.TimeoutSeconds
	}
	if strings.TrimSpace(c.Paths.KnowledgeDir) == "" {
		c.Paths.KnowledgeDir = defaults.Paths.KnowledgeDir
	}
	if strings.TrimSpace(c.Paths.PersonalDir) == "" {
		c.Paths.PersonalDir = defaults.Paths.PersonalDir
	}
	if strings.TrimSpace(c.Paths.ScriptsDir) == "" {
		c.Paths.ScriptsDir = defaults.Paths.ScriptsDir
	}
	if strings.TrimSpace(c.Paths.DownloadsDir) == "" {
		c.Paths.DownloadsDir = defaults.Paths.DownloadsDir
	}
	if len(c.Safety.AllowedCommands) == 0 {
		c.Safety.AllowedCommands = append([]string(nil), defaults.Safety.AllowedCommands...)
	}
	c.Safety.AllowedCommands = dedupeLower(c.Safety.AllowedCommands)
	c.Safety.AllowedScripts = dedupeLower(c.Safety.AllowedScripts)
	if len(c.Safety.BlockedScripts) == 0 {
		c.Safety.BlockedScripts = append([]string(nil), defaults.Safety.BlockedScripts...)
	}
	c.Safety.BlockedScripts = dedupeLower(c.Safety.BlockedScripts)
	if len(c.Status.DiskMounts) == 0 {
		c.Status.DiskMounts = append([]string(nil), defaults.Status.DiskMounts...)
	}
	c.UI.Backend = normalizeUIBackend(c.UI.Backend, defaults.UI.Backend)
	if c.UI.MaxWidth <= 0 {
		c.UI.MaxWidth = defaults.UI.MaxWidth
	}
}

// DatabasePath resolves the sqlite path, defaulting into the data dir.
func (c Config) DatabasePath() (string, error) {
	if strings.TrimSpace(c.Paths.DatabasePath) != "" {
		return c.Paths.DatabasePath, nil
	}
	dir, err := appdirs.EnsureDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kaia_personal.db"), nil
}

// VectorIndexPath resolves the chromem persistence dir under the data dir.
func (c Config) VectorIndexPath() (string, error) {
	dir, err := appdirs.EnsureDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chroma"), nil
}

func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	switch key {
	case "ollama.host":
		c.Ollama.Host = value
	case "ollama.chat_model":
		c.Ollama.ChatModel = value
	case "ollama.command_model":
		c.Ollama.CommandModel = value
	case "ollama.embedding_model":
		c.Ollama.EmbeddingModel = value
	case "ollama.timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("ollama.timeout_seconds must be a positive integer")
		}
		c.Ollama.TimeoutSeconds = n
	case "paths.knowledge_dir":
		c.Paths.KnowledgeDir = value
	case "paths.personal_dir":
		c.Paths.PersonalDir = value
	case "paths.scripts_dir":
		c.Paths.ScriptsDir = value
	case "paths.downloads_dir":
		c.Paths.DownloadsDir = value
	case "paths.database_path":
		c.Paths.DatabasePath = value
	case "safety.redact_secrets":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("safety.redact_secrets must be boolean")
		}
		c.Safety.RedactSecrets = b
	case "ui.backend":
		normalized := normalizeUIBackend(value, "")
		if normalized == "" {
			return fmt.Errorf("ui.backend must be one of auto|bubbletea|huh|tview|plain")
		}
		c.UI.Backend = normalized
	case "ui.max_width":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("ui.max_width must be a positive integer")
		}
		c.UI.MaxWidth = n
	case "features.sql_queries":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("features.sql_queries must be boolean")
		}
		c.Features.SQLQueries = b
	case "features.tts":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("features.tts must be boolean")
		}
		c.Features.TTS = b
	case "features.file_log":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("features.file_log must be boolean")
		}
		c.Features.FileLog = b
	case "features.debug_log":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("features.debug_log must be boolean")
		}
		c.Features.DebugLog = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	c.normalize()
	return nil
}

func (c Config) Get(key string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(key)) {
	case "ollama.host":
		return c.Ollama.Host, nil
	case "ollama.chat_model":
		return c.Ollama.ChatModel, nil
	case "ollama.command_model":
		return c.Ollama.CommandModel, nil
	case "ollama.embedding_model":
		return c.Ollama.EmbeddingModel, nil
	case "ollama.timeout_seconds":
		return strconv.Itoa(c.Ollama.TimeoutSeconds), nil
	case "paths.knowledge_dir":
		return c.Paths.KnowledgeDir, nil
	case "paths.personal_dir":
		return c.Paths.PersonalDir, nil
	case "paths.scripts_dir":
		return c.Paths.ScriptsDir, nil
	case "paths.downloads_dir":
		return c.Paths.DownloadsDir, nil
	case "paths.database_path":
		return c.Paths.DatabasePath, nil
	case "safety.redact_secrets":
		return strconv.FormatBool(c.Safety.RedactSecrets), nil
	case "ui.backend":
		return c.UI.Backend, nil
	case "ui.max_width":
		return strconv.Itoa(c.UI.MaxWidth), nil
	case "features.sql_queries":
		return strconv.FormatBool(c.Features.SQLQueries), nil
	case "features.tts":
		return strconv.FormatBool(c.Features.TTS), nil
	case "features.file_log":
		return strconv.FormatBool(c.Features.FileLog), nil
	case "features.debug_log":
		return strconv.FormatBool(c.Features.DebugLog), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Keys returns every settable key in sorted order, for `kaia config list`.
func Keys() []string {
	keys := []string{
		"ollama.host",
		"ollama.chat_model",
		"ollama.command_model",
		"ollama.embedding_model",
		"ollama.timeout_seconds",
		"paths.knowledge_dir",
		"paths.personal_dir",
		"paths.scripts_dir",
		"paths.downloads_dir",
		"paths.database_path",
		"safety.redact_secrets",
		"ui.backend",
		"ui.max_width",
		"features.sql_queries",
		"features.tts",
		"features.file_log",
		"features.debug_log",
	}
	sort.Strings(keys)
	return keys
}

func normalizeUIBackend(value, fallback string) string {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "auto", "bubbletea", "huh", "tview", "plain":
		return strings.TrimSpace(strings.ToLower(value))
	case "":
		return fallback
	default:
		return fallback
	}
}

func parseBool(value string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %s", value)
	}
}

func dedupeLower(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		token := strings.ToLower(strings.TrimSpace(value))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
