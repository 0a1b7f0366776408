package core

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryMessageStore keeps messages in process memory. It never fails and never assigns ids.
// It is the fallback used when no durable store is reachable.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	now      func() time.Time
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages: make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *MemoryMessageStore) AppendMessage(_ context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	m := input.message(s.now())

	s.mu.Lock()
	s.messages[m.GroupID] = append(s.messages[m.GroupID], m)
	s.mu.Unlock()
	return &m, nil
}

func (s *MemoryMessageStore) ListMessages(_ context.Context, groupID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := slices.Clone(s.messages[groupID])
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// JoinGroup does not track membership and always succeeds.
func (s *MemoryMessageStore) JoinGroup(context.Context, string, string) error {
	return nil
}

func (s *MemoryMessageStore) Persistent() bool { return false }

func (s *MemoryMessageStore) Name() string { return "memory" }

func (s *MemoryMessageStore) Close() error { return nil }
