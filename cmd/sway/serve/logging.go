package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/papercomputeco/sway/pkg/config"
	"github.com/papercomputeco/sway/pkg/logger"
)

// NewLogger builds the serve logger from the [log] section. The returned
// func closes the log file, if one was opened.
func NewLogger(c config.LogConfig, debug bool) (*slog.Logger, func() error, error) {
	stdout := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(!c.JSON),
		logger.WithJSON(c.JSON),
		logger.WithSource(c.Source),
	)
	if c.File == "" {
		return stdout, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithSource(c.Source),
	)
	return logger.Multi(stdout, file), f.Close, nil
}
