// Package wsfeed forwards committed stream events to websocket subscribers.
package wsfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/saylorsolutions/rest/stream"
)

var (
	ErrClosed = errors.New("feed is closed")
)

// DefaultQueueSize is the number of messages buffered per subscriber before messages are dropped.
var DefaultQueueSize = 16

// Message is the JSON representation of an event sent to subscribers.
type Message struct {
	Event   string         `json:"event"`
	Payload string         `json:"payload,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Subscriber receives messages from the [Hub] on Send until it's unsubscribed.
type Subscriber struct {
	Send chan []byte
}

var _ stream.Transport = (*Hub)(nil)

// Hub is a [stream.Transport] that offers each event to every subscriber.
// Delivery never blocks: a subscriber with a full queue misses the message.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mux    sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

type HubOption func(h *Hub)

// WithLogger sets the logger used to report connection problems.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithOriginCheck overrides the websocket origin check, which defaults to same-origin.
func WithOriginCheck(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs: map[*Subscriber]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new [Subscriber].
func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sub := &Subscriber{Send: make(chan []byte, DefaultQueueSize)}
	h.subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe removes the [Subscriber] and closes its Send channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mux.Lock()
	defer h.mux.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.Send)
}

// Subscribers reports the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return len(h.subs)
}

// Deliver satisfies [stream.Transport].
func (h *Hub) Deliver(evt stream.Event) error {
	data, err := json.Marshal(Message{
		Event:   evt.Name,
		Payload: evt.Payload,
		Context: evt.Context,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event '%s': %w", evt.Name, err)
	}
	h.mux.RLock()
	defer h.mux.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for sub := range h.subs {
		select {
		case sub.Send <- data:
		default:
			h.log.Warn("Dropped event for slow subscriber", "event", evt.Name)
		}
	}
	return nil
}

// Close disconnects all subscribers. Later deliveries return [ErrClosed].
func (h *Hub) Close() {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.Send)
	}
}

// ServeHTTP upgrades the connection and streams events to the client until either side disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Unsubscribe(sub)
		h.log.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	defer h.Unsubscribe(sub)

	// Client frames are ignored, but reading is needed to notice a close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					h.log.Debug("Websocket read ended", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case msg, more := <-sub.Send:
			if !more {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrClosed.Error()))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Error("Failed to write websocket message", "error", err)
				return
			}
		}
	}
}
