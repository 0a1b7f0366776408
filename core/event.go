package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrMalformedPayload is returned by event handlers when the payload of an event cannot be decoded
// or misses a required field.
var ErrMalformedPayload = errors.New("malformed payload")

// Event is the envelope of every frame exchanged over a websocket connection.
type Event struct {
	// ConnID is the connection the event was received from. It is never sent over the wire.
	ConnID  string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func (e Event) String() string {
	return fmt.Sprintf("Event{ConnID: %s, Type: %s, Payload.Size: %d}", e.ConnID, e.Type, len(e.Payload))
}

// DecodePayload unmarshals the payload of the event into v.
// A missing or invalid payload is reported as ErrMalformedPayload.
func (e *Event) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

type EventHandler func(context.Context, *Event) error

// EventRouter maps event types to handlers.
// Dispatch runs the handler on the calling goroutine, so events handed over by a single
// connection are processed one at a time and in order.
type EventRouter struct {
	listeners map[string]EventHandler
	mu        sync.RWMutex
	logger    *zap.Logger
}

func NewEventRouter(logger *zap.Logger) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		logger:    logger,
	}
}

func (em *EventRouter) On(eventName string, handler EventHandler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.listeners[eventName] = handler
}

// Dispatch invokes the handler registered for the type of e.
// Handler errors and panics are logged and never propagate to the caller.
func (em *EventRouter) Dispatch(ctx context.Context, e *Event) {
	em.mu.RLock()
	handler, ok := em.listeners[e.Type]
	em.mu.RUnlock()
	if !ok {
		em.logger.Debug("no handler for event", zap.String("type", e.Type), zap.String("conn", e.ConnID))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("event handler panicked",
				zap.String("type", e.Type), zap.String("conn", e.ConnID), zap.Any("panic", r))
		}
	}()

	if err := handler(ctx, e); err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			em.logger.Warn("dropped event", zap.String("type", e.Type), zap.String("conn", e.ConnID), zap.Error(err))
			return
		}
		em.logger.Error(fmt.Sprintf("%s handler", e.Type), zap.String("conn", e.ConnID), zap.Error(err))
	}
}
