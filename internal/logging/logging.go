// Package logging builds the process-wide slog logger. Records are rendered
// by a charmbracelet/log handler; file output is rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cwbudde/annealcycle/internal/config"
)

// New returns a logger for cfg together with a closer for its output.
// The closer is a no-op unless output is a file.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	formatter, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	w, closer, err := output(cfg)
	if err != nil {
		return nil, nil, err
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Formatter:       formatter,
	})
	return slog.New(handler), closer, nil
}

// Setup is New followed by slog.SetDefault.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func parseFormat(format string) (log.Formatter, error) {
	switch format {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func output(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = "logs/annealcycle.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		return lj, lj, nil
	default:
		return nil, nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}
