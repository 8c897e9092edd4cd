package slogx

import (
	"context"
	"errors"
	"log/slog"
)

var _ slog.Handler = (*fanoutHandler)(nil)

type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to every handler that's enabled for its level.
func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler {
		return handler.WithAttrs(attrs)
	})
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler {
		return handler.WithGroup(name)
	})
}

func (h *fanoutHandler) each(fn func(handler slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return &fanoutHandler{handlers: handlers}
}

// MergeHandlers will merge many [slog.Handler] into one, so each record is written to all of them.
// Each handler keeps its own level.
func MergeHandlers(a, b slog.Handler, others ...slog.Handler) slog.Handler {
	handlers := append([]slog.Handler{a, b}, others...)
	for _, handler := range handlers {
		if handler == nil {
			panic("nil handler")
		}
	}
	return &fanoutHandler{handlers: handlers}
}
