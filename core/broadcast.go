package core

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// EventSender delivers an event to a set of connections without blocking.
type EventSender interface {
	SendToConns(e *Event, connIDs ...string)
}

// Broadcaster fans events out to the connections of a group.
// Fan-out is serialized, so every member of a group observes the group's events in the same order.
type Broadcaster struct {
	mu       sync.Mutex
	registry *Registry
	sender   EventSender
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, sender EventSender, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		sender:   sender,
		logger:   logger,
	}
}

// BroadcastToGroup delivers the event to every connection of groupID, the sender included.
func (b *Broadcaster) BroadcastToGroup(groupID, eventType string, payload interface{}) error {
	return b.broadcast(groupID, eventType, payload, "")
}

// BroadcastToOthers delivers the event to every connection of groupID except senderConnID.
func (b *Broadcaster) BroadcastToOthers(senderConnID, groupID, eventType string, payload interface{}) error {
	return b.broadcast(groupID, eventType, payload, senderConnID)
}

// SendTo delivers the event to a single connection. Unknown connections are ignored.
func (b *Broadcaster) SendTo(connID, eventType string, payload interface{}) error {
	e, err := NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("NewEvent: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender.SendToConns(e, connID)
	return nil
}

// BroadcastPresence sends the member list of groupID to the whole group.
// The snapshot is taken under the fan-out lock.
func (b *Broadcaster) BroadcastPresence(groupID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := NewEvent(PresenceEvent, b.registry.MembersOf(groupID))
	if err != nil {
		return fmt.Errorf("NewEvent: %w", err)
	}
	b.sender.SendToConns(e, b.registry.ConnectionsOf(groupID)...)
	return nil
}

func (b *Broadcaster) broadcast(groupID, eventType string, payload interface{}, exclude string) error {
	e, err := NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("NewEvent: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	targets := b.registry.ConnectionsOf(groupID)
	if exclude != "" {
		targets = lo.Without(targets, exclude)
	}
	if len(targets) == 0 {
		return nil
	}
	b.logger.Debug("broadcast", zap.String("group", groupID), zap.String("type", eventType), zap.Int("targets", len(targets)))
	b.sender.SendToConns(e, targets...)
	return nil
}
