package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler NewHandler builds.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures one log sink. A nil Output writes to os.Stderr.
type Config struct {
	Level  slog.Level
	Format Format
	Output io.Writer
}

// NewHandler builds a text or JSON handler for cfg.
func NewHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == FormatJSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a discarding logger when l is nil. Components that
// take an optional logger call it once in their constructor.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// ParseLevel maps a level name to a slog.Level, case-insensitively.
// Unknown names, including "", mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ParseFormat returns FormatJSON for "json" in any case and FormatText for
// anything else.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
