package log

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingConfig configures a file-backed, size-rotated logger for the
// node's log-file-path setting (spec §6.5).
type RotatingConfig struct {
	// Path is the log file to write to.
	Path string
	// MaxSizeMB rotates the file once it exceeds this size, in megabytes.
	MaxSizeMB int
	// MaxBackups caps the number of rotated files kept around.
	MaxBackups int
	// MaxAgeDays deletes rotated files older than this many days. Zero
	// disables age-based cleanup.
	MaxAgeDays int
	// Compress gzip-compresses rotated files.
	Compress bool
	// Level is the minimum level emitted.
	Level slog.Level
}

// NewRotating creates a Logger that writes JSON to a size- and age-rotated
// file at cfg.Path. Rotation, retention, and compression are handled by
// lumberjack; the logger itself is a normal slog.JSONHandler over it.
func NewRotating(cfg RotatingConfig) *Logger {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level})
	return &Logger{inner: slog.New(h)}
}
