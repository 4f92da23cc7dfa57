package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"backpack-mm/internal/config"
)

// New builds a logger that writes human-readable lines to stdout and JSON lines
// to cfg.File. The returned closer flushes and closes the file.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	return NewWithConsole(cfg, os.Stdout)
}

func NewWithConsole(cfg config.LogConfig, console io.Writer) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(console), level),
	}
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level))
		closeFn = file.Close
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}
