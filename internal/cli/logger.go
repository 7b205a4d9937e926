package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger returns a slog logger backed by a charmbracelet/log handler.
// Verbose enables debug records.
func NewLogger(w io.Writer, prefix string, verbose bool) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           log.InfoLevel,
	})

	if verbose {
		handler.SetLevel(log.DebugLevel)
	}

	return slog.New(handler)
}
