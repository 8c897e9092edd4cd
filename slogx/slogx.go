// Package slogx builds the process logger.
package slogx

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

const (
	FormatAuto = ""
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	Level slog.Level
	// Format is one of FormatAuto, FormatText, or FormatJSON.
	// FormatAuto writes text when Output is a terminal, and JSON otherwise.
	Format string
	// Output defaults to [os.Stderr].
	Output io.Writer
	// File is an additional writer, such as an opened log file, that always receives JSON.
	File io.Writer
}

// New creates a [*slog.Logger] from [Options].
func New(opts Options) (*slog.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	switch opts.Format {
	case FormatAuto:
		if IsTerminal(out) {
			handler = slog.NewTextHandler(out, handlerOpts)
		} else {
			handler = slog.NewJSONHandler(out, handlerOpts)
		}
	case FormatText:
		handler = slog.NewTextHandler(out, handlerOpts)
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format '%s'", opts.Format)
	}
	if opts.File != nil {
		handler = MergeHandlers(handler, slog.NewJSONHandler(opts.File, handlerOpts))
	}
	return slog.New(handler), nil
}

// IsTerminal reports whether w is a file descriptor attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Discard returns a logger that writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
