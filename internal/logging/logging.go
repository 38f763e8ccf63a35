// Package logging installs the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure Setup
type Options struct {
	Level  string
	Format string // "text" or "json"
	// File, when set, receives the log through a size-rotated writer
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Stderr is the fallback writer; nil means os.Stderr
	Stderr io.Writer
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger without installing it. The returned closer flushes
// and closes the log file, if any.
func New(o Options) (*slog.Logger, io.Closer) {
	var w io.Writer = o.Stderr
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if o.File != "" {
		maxSize := o.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := o.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(o.Level)}
	var handler slog.Handler
	if strings.ToLower(o.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer
}

// Setup installs the logger as slog's default
func Setup(o Options) io.Closer {
	logger, closer := New(o)
	slog.SetDefault(logger)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
