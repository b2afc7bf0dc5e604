// Package logging builds the process logger: a text handler for the
// terminal and, when a log file is configured, a JSON handler writing to a
// size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level     string
	File      string
	MaxSizeMB int
	MaxFiles  int
}

// New returns a logger writing text to out and, if opts.File is set, JSON to
// the rotating file. The returned closer releases the file and is never nil.
func New(out io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	text := slog.NewTextHandler(out, handlerOpts)

	if opts.File == "" {
		return slog.New(text), nopCloser{}, nil
	}

	writer, err := NewRotatingWriter(opts.File, opts.MaxSizeMB, opts.MaxFiles)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewMultiHandler(
		text,
		slog.NewJSONHandler(writer, handlerOpts),
	))
	return logger, writer, nil
}

// NewRotatingWriter returns a lumberjack writer for path, creating its
// directory. Non-positive limits fall back to 10 MB and 5 backups.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*lumberjack.Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("rotation file path must not be empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxFiles,
		Compress:   false,
	}, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
