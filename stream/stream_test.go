package stream

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triple struct {
	id      int
	name    string
	payload string
	ctx     map[string]any
}

func TestStream_Commit_Order(t *testing.T) {
	var (
		s        = New()
		received []triple
	)
	for i := 1; i <= 3; i++ {
		id := i
		s.AddTransportFunc(func(evt Event) error {
			received = append(received, triple{id: id, name: evt.Name, payload: evt.Payload, ctx: evt.Context})
			return nil
		})
	}
	require.NoError(t, s.Commit("e", "p", map[string]any{}))
	require.Len(t, received, 3)
	for i, r := range received {
		assert.Equal(t, i+1, r.id, "Transports should be invoked in registration order")
		assert.Equal(t, "e", r.name)
		assert.Equal(t, "p", r.payload)
		assert.Equal(t, map[string]any{}, r.ctx)
	}
}

func TestStream_Commit_NoTransports(t *testing.T) {
	s := New()
	rec := NewRecorder()
	assert.NoError(t, s.Commit("early", "", nil), "Committing without transports is not an error")
	s.AddTransport(rec.Transport())
	assert.Equal(t, 0, rec.Count("early"), "Late transports should not see earlier events")

	require.NoError(t, s.Commit("late", "", nil))
	assert.Equal(t, []string{"late"}, rec.Names())
}

func TestStream_AddTransport_Duplicate(t *testing.T) {
	var (
		calls int
		s     = New()
		tr    = TransportFunc(func(evt Event) error {
			calls++
			return nil
		})
	)
	s.AddTransport(tr)
	s.AddTransport(tr)
	require.NoError(t, s.Commit("e", "", nil))
	assert.Equal(t, 2, calls, "Registering twice means receiving twice")
	assert.Equal(t, 2, s.TransportCount())
}

func TestStream_Commit_Failure(t *testing.T) {
	var (
		errBoom = errors.New("boom")
		rec     = NewRecorder()
		s       = New(rec.Transport())
	)
	s.AddTransportFunc(func(evt Event) error {
		return errBoom
	})
	after := NewRecorder()
	s.AddTransport(after.Transport())

	err := s.Commit("e", "p", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, errBoom)
	var deliveryErr *TransportDeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.Equal(t, 1, deliveryErr.Transport)
	assert.Equal(t, "e", deliveryErr.Event)

	assert.Equal(t, 1, rec.Count("e"), "Transports before the failure should be invoked")
	assert.Equal(t, 0, after.Count("e"), "Transports after the failure should not be invoked")
}

func TestIsolate(t *testing.T) {
	var (
		errBoom  = errors.New("boom")
		reported []error
		after    = NewRecorder()
		s        = New()
	)
	s.AddTransport(Isolate(TransportFunc(func(evt Event) error {
		return errBoom
	}), func(evt Event, err error) {
		reported = append(reported, err)
	}))
	s.AddTransport(after.Transport())

	assert.NoError(t, s.Commit("e", "", nil))
	assert.Equal(t, []error{errBoom}, reported)
	assert.Equal(t, 1, after.Count("e"))
}

func TestStream_AddTransport_Nil(t *testing.T) {
	assert.Panics(t, func() {
		New().AddTransport(nil)
	})
}

func TestStream_ConcurrentAdd(t *testing.T) {
	var (
		s       = New()
		wg      sync.WaitGroup
		started = make(chan struct{})
		release = make(chan struct{})
		once    sync.Once
	)
	s.AddTransportFunc(func(evt Event) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return nil
	})
	late := NewRecorder()

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Commit("in-flight", "", nil))
	}()
	<-started
	s.AddTransport(late.Transport())
	close(release)
	wg.Wait()

	assert.Equal(t, 0, late.Count("in-flight"), "In-flight commits use the transports registered at call time")
	require.NoError(t, s.Commit("next", "", nil))
	assert.Equal(t, 1, late.Count("next"))
}

func TestLogTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := New(LogTransport(logger, slog.LevelInfo))
	require.NoError(t, s.Commit("rest.install", "", map[string]any{"status": 204}))
	out := buf.String()
	assert.Contains(t, out, "event=rest.install")
	assert.Contains(t, out, "context.status=204")
}

func TestContextValue(t *testing.T) {
	evt := Event{Name: "e", Context: map[string]any{"status": 200, "path": "/x", "nothing": nil}}
	status, err := ContextValue[int](evt, "status")
	assert.NoError(t, err)
	assert.Equal(t, 200, status)

	_, err = ContextValue[string](evt, "status")
	assert.ErrorIs(t, err, ErrUnexpectedTypeValue)

	_, err = ContextValue[string](evt, "nothing")
	assert.ErrorIs(t, err, ErrMissingContext)

	assert.Equal(t, "fallback", ContextValueOr(evt, "missing", "fallback"))
	assert.Equal(t, "/x", ContextValueOr(evt, "path", ""))
}
