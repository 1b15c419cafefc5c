package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds the caller position to every record.
	AddSource bool
	// Backend is slog or zap.
	Backend string
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "json",
		Output:  os.Stderr,
		Backend: "slog",
	}
}

// level is shared by every logger built with New so SetLevel reaches all
// of them, including loggers already derived with With.
var level = new(slog.LevelVar)

// New builds a logger for cfg and sets the shared level to cfg.Level.
func New(cfg Config) (*slog.Logger, error) {
	level.Set(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redact(a)
		},
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Backend) {
	case "", "slog":
		if isText(cfg.Format) {
			handler = slog.NewTextHandler(output, opts)
		} else {
			handler = slog.NewJSONHandler(output, opts)
		}
	case "zap":
		handler = newZapHandler(output, cfg.Format, opts)
	default:
		return nil, fmt.Errorf("logger: unknown backend %q", cfg.Backend)
	}
	return slog.New(handler), nil
}

// SetLevel changes the level of every logger built with New.
func SetLevel(l string) {
	level.Set(parseLevel(l))
}

// GetLevel returns the current level in the form SetLevel accepts.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

// parseLevel falls back to info for unknown names.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func isText(format string) bool {
	switch strings.ToLower(format) {
	case "text", "console":
		return true
	}
	return false
}
