package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ekco-S64QTN6/ollama-rag-agent/internal/appdirs"
)

const logFileName = "kaia.log"

// New builds a file-backed logger in the state dir. The console is left to
// the REPL, so nothing is written to stderr unless opening the file fails.
func New(enabled bool, debug bool) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}

	if _, err := appdirs.EnsureStateDir(); err != nil {
		return nil, err
	}
	path, err := appdirs.StateFilePath(logFileName)
	if err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	return logger, nil
}
