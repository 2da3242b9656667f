// Package observability configures the process-wide logger.
package observability

import (
	"fmt"
	"log/slog"
	"os"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Instrument installs the default slog logger writing to stderr with the
// given level and format. Stdout stays reserved for command output.
func Instrument(level slog.Level, format LogFormat) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case LogFormatText, "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
