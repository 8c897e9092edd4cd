package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/saylorsolutions/rest/internal/syncx"
)

var (
	ErrDelivery     = errors.New("transport delivery failed")
	ErrNilTransport = errors.New("nil transport")
)

// Event is a single committed event, passed to every [Transport].
// It only exists for the duration of a call to [Stream.Commit].
type Event struct {
	Name    string
	Payload string
	Context map[string]any
}

// Transport is a delivery target for committed events.
type Transport interface {
	// Deliver performs some externally visible side effect for the event.
	// A returned error halts delivery to the transports registered after this one.
	Deliver(evt Event) error
}

// TransportFunc is a function that implements [Transport].
type TransportFunc func(evt Event) error

func (f TransportFunc) Deliver(evt Event) error {
	return f(evt)
}

// TransportDeliveryError reports which transport failed to deliver an event.
type TransportDeliveryError struct {
	Event     string
	Transport int // Transport is the registration index of the failing transport.
	Err       error
}

func (e *TransportDeliveryError) Error() string {
	return fmt.Sprintf("%v: event '%s' at transport %d: %v", ErrDelivery, e.Event, e.Transport, e.Err)
}

func (e *TransportDeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}

// Stream distributes committed events to all registered transports.
// The zero value is ready to use.
type Stream struct {
	mux        sync.RWMutex
	transports []Transport
}

func New(transports ...Transport) *Stream {
	s := new(Stream)
	for _, t := range transports {
		s.AddTransport(t)
	}
	return s
}

// AddTransport appends a [Transport] to the delivery order.
// Registration is not de-duplicated.
// Passing a nil [Transport] will panic.
func (s *Stream) AddTransport(t Transport) {
	if t == nil {
		panic(ErrNilTransport)
	}
	syncx.LockFunc(&s.mux, func() {
		s.transports = append(s.transports, t)
	})
}

// AddTransportFunc is a shorthand for adding a [TransportFunc].
func (s *Stream) AddTransportFunc(fn func(evt Event) error) {
	if fn == nil {
		panic(ErrNilTransport)
	}
	s.AddTransport(TransportFunc(fn))
}

// TransportCount reports how many transports are registered.
func (s *Stream) TransportCount() int {
	return syncx.RLockFuncT(&s.mux, func() int {
		return len(s.transports)
	})
}

func (s *Stream) snapshot() []Transport {
	return syncx.RLockFuncT(&s.mux, func() []Transport {
		// Full slice expression so a concurrent append can never write into this view.
		return s.transports[:len(s.transports):len(s.transports)]
	})
}

// Commit delivers an event to every registered [Transport] in registration order, and returns once all have been invoked.
// If a [Transport] fails, then delivery stops and a [*TransportDeliveryError] is returned.
// Transports added while a commit is in flight will not receive that event.
//
// A nil ctx is delivered as an empty map.
func (s *Stream) Commit(name, payload string, ctx map[string]any) error {
	if ctx == nil {
		ctx = map[string]any{}
	}
	evt := Event{
		Name:    name,
		Payload: payload,
		Context: ctx,
	}
	for i, t := range s.snapshot() {
		if err := t.Deliver(evt); err != nil {
			return &TransportDeliveryError{Event: name, Transport: i, Err: err}
		}
	}
	return nil
}
