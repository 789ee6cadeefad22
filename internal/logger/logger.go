// Package logger configures the process-wide structured logger. Every
// component logs through log/slog; this package only wires up the handler,
// rotation, and the FILOCO_DBG category gate.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the logger's destination and verbosity.
type Config struct {
	// Path is the log file path. Empty means stderr.
	Path string
	// MaxSizeMB rotates the file once it exceeds this size (lumberjack).
	MaxSizeMB int
	// MaxBackups bounds how many rotated files are kept.
	MaxBackups int
	// Debug enables debug-level logging for the categories named in
	// FILOCO_DBG (comma-separated, e.g. "scanner,mdsync"); "*" enables all.
	Debug bool
	// Categories, if non-nil, overrides FILOCO_DBG for tests.
	Categories []string
}

var (
	mu         sync.RWMutex
	root       *slog.Logger = slog.Default()
	categories map[string]bool
	allDebug   bool
)

// Init installs the process-wide logger per cfg. Call once at startup;
// subsequent calls are cheap and safe (tests may re-Init between cases).
func Init(cfg Config) {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    orDefault(cfg.MaxSizeMB, 64),
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	cats := cfg.Categories
	if cats == nil {
		if v := os.Getenv("FILOCO_DBG"); v != "" {
			cats = strings.Split(v, ",")
		}
	}
	m := map[string]bool{}
	all := false
	for _, c := range cats {
		c = strings.TrimSpace(c)
		if c == "*" {
			all = true
		}
		if c != "" {
			m[c] = true
		}
	}

	mu.Lock()
	root = slog.New(h)
	categories = m
	allDebug = all
	mu.Unlock()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// For returns a logger scoped to category, used as `logger.For("scanner")`.
// Debug-level records from it are only emitted when category is enabled via
// FILOCO_DBG or Config.Debug/Categories.
func For(category string) *slog.Logger {
	mu.RLock()
	l := root.With("category", category)
	enabled := allDebug || categories[category]
	mu.RUnlock()
	if !enabled {
		l = slog.New(&levelFloor{next: l.Handler(), min: slog.LevelInfo})
	}
	return l
}

// levelFloor drops records below min, used to suppress Debug records for
// categories FILOCO_DBG did not name.
type levelFloor struct {
	next slog.Handler
	min  slog.Level
}

func (f *levelFloor) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.min && f.next.Enabled(ctx, level)
}
func (f *levelFloor) Handle(ctx context.Context, r slog.Record) error { return f.next.Handle(ctx, r) }
func (f *levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelFloor{next: f.next.WithAttrs(attrs), min: f.min}
}
func (f *levelFloor) WithGroup(name string) slog.Handler {
	return &levelFloor{next: f.next.WithGroup(name), min: f.min}
}
