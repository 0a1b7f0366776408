package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingSender records the events delivered to each connection.
// Like the websocket transport, it drops events for connections that are gone.
type recordingSender struct {
	mu       sync.Mutex
	received map[string][]*Event
	dropped  map[string][]*Event
	gone     map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		received: make(map[string][]*Event),
		dropped:  make(map[string][]*Event),
		gone:     make(map[string]bool),
	}
}

func (s *recordingSender) SendToConns(e *Event, connIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range connIDs {
		if s.gone[id] {
			s.dropped[id] = append(s.dropped[id], e)
			continue
		}
		s.received[id] = append(s.received[id], e)
	}
}

// disconnect makes every later event for connID be dropped.
func (s *recordingSender) disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone[connID] = true
}

func (s *recordingSender) droppedTypes(connID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.dropped[connID]))
	for _, e := range s.dropped[connID] {
		types = append(types, e.Type)
	}
	return types
}

func (s *recordingSender) events(connID string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.received[connID]...)
}

func (s *recordingSender) types(connID string) []string {
	events := s.events(connID)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

// last returns the last event of type t received by connID.
func (s *recordingSender) last(t *testing.T, connID, eventType string) *Event {
	t.Helper()
	events := s.events(connID)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i]
		}
	}
	require.Failf(t, "event not received", "%s never received %q", connID, eventType)
	return nil
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = make(map[string][]*Event)
}

func decodePayload[T any](t *testing.T, e *Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Payload, &v))
	return v
}

func newTestEvent(t *testing.T, connID, eventType string, payload interface{}) *Event {
	t.Helper()
	e, err := NewEvent(eventType, payload)
	require.NoError(t, err)
	e.ConnID = connID
	return e
}

var errStoreDown = errors.New("store down")

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	args := m.Called(ctx, input)
	msg, _ := args.Get(0).(*Message)
	return msg, args.Error(1)
}

func (m *mockStore) ListMessages(ctx context.Context, groupID string) ([]Message, error) {
	args := m.Called(ctx, groupID)
	messages, _ := args.Get(0).([]Message)
	return messages, args.Error(1)
}

func (m *mockStore) JoinGroup(ctx context.Context, groupID, userName string) error {
	return m.Called(ctx, groupID, userName).Error(0)
}

func (m *mockStore) Persistent() bool { return true }

func (m *mockStore) Name() string { return "mock" }

func (m *mockStore) Close() error { return nil }
