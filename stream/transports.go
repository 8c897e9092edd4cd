package stream

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/saylorsolutions/rest/internal/syncx"
)

// Isolate wraps a [Transport] so that its errors are passed to onErr instead of halting delivery.
// A nil onErr discards the errors.
func Isolate(t Transport, onErr func(evt Event, err error)) Transport {
	if t == nil {
		panic(ErrNilTransport)
	}
	return TransportFunc(func(evt Event) error {
		if err := t.Deliver(evt); err != nil && onErr != nil {
			onErr(evt, err)
		}
		return nil
	})
}

// LogTransport returns a [Transport] that logs each event at the provided level.
// Context entries are logged as attributes in an "context" group.
func LogTransport(l *slog.Logger, level slog.Level) Transport {
	if l == nil {
		panic("nil logger")
	}
	return TransportFunc(func(evt Event) error {
		attrs := make([]any, 0, len(evt.Context))
		keys := make([]string, 0, len(evt.Context))
		for key := range evt.Context {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			attrs = append(attrs, slog.Any(key, evt.Context[key]))
		}
		l.Log(context.Background(), level, "event committed",
			"event", evt.Name,
			"payload", evt.Payload,
			slog.Group("context", attrs...),
		)
		return nil
	})
}

// Recorded is one event captured by a [Recorder].
type Recorded struct {
	Payload string
	Context map[string]any
}

// Recorder captures committed events in memory, grouped by event name.
// It's safe for concurrent use, and is mostly useful in tests.
type Recorder struct {
	mux    sync.Mutex
	order  []string
	events map[string][]Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{events: map[string][]Recorded{}}
}

// Transport returns the [Transport] that feeds this [Recorder].
// Each call returns a distinct value, so registering two of them records every event twice.
func (r *Recorder) Transport() Transport {
	return TransportFunc(func(evt Event) error {
		syncx.LockFunc(&r.mux, func() {
			r.order = append(r.order, evt.Name)
			r.events[evt.Name] = append(r.events[evt.Name], Recorded{Payload: evt.Payload, Context: evt.Context})
		})
		return nil
	})
}

// Events returns a copy of the events recorded for the given name, in delivery order.
func (r *Recorder) Events(name string) []Recorded {
	return syncx.LockFuncT(&r.mux, func() []Recorded {
		return slices.Clone(r.events[name])
	})
}

// Count returns how many times the named event was recorded.
func (r *Recorder) Count(name string) int {
	return syncx.LockFuncT(&r.mux, func() int {
		return len(r.events[name])
	})
}

// Names returns the names of all recorded events in delivery order, including repeats.
func (r *Recorder) Names() []string {
	return syncx.LockFuncT(&r.mux, func() []string {
		return slices.Clone(r.order)
	})
}
