package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for per-service log files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the log destination for one managed service.
// If Path is empty and Dir is set, the file is Dir/<name>.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string // base directory for service logs
	Path       string // explicit path overrides Dir
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// FilePath returns the resolved log file path for the named service, or ""
// when no destination is configured.
func (c Config) FilePath(name string) string {
	if c.Path != "" {
		return c.Path
	}
	if c.Dir != "" {
		return filepath.Join(c.Dir, fmt.Sprintf("%s.log", name))
	}
	return ""
}

// Writer returns a rotating io.WriteCloser receiving both stdout and stderr
// of the named service. Returns nil when no destination is configured.
func (c Config) Writer(name string) (io.WriteCloser, error) {
	path := c.FilePath(name)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// Truncate empties the named service's current log file so a fresh run starts
// with clean logs. Missing files are not an error.
func (c Config) Truncate(name string) error {
	path := c.FilePath(name)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Truncate(path, 0)
}

// Setup installs the process-wide slog default handler. When verbose is true
// the level drops to debug; color enables the ANSI console handler.
func Setup(verbose, color bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if color {
		h = consoleHandler{h}
	}
	slog.SetDefault(slog.New(h))
}

const ansiReset = "\033[0m"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m",
	slog.LevelInfo:  "\033[32m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

// consoleHandler prefixes each record's message with its ANSI-colored level
// before delegating to the wrapped handler.
type consoleHandler struct {
	slog.Handler
}

func (h consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	code, ok := levelColors[r.Level]
	if !ok {
		code = ansiReset
	}
	r.Message = code + r.Level.String() + ansiReset + "  " + r.Message
	return h.Handler.Handle(ctx, r)
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
