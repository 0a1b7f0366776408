package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Gateway implements the per-connection chat protocol.
// A connection starts unjoined, joins a group with a join event and leaves it when it disconnects.
type Gateway struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       MessageStore
	logger      *zap.Logger
}

func NewGateway(registry *Registry, broadcaster *Broadcaster, store MessageStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		logger:      logger,
	}
}

// Register binds the handlers of the client events to router.
func (g *Gateway) Register(router *EventRouter) {
	router.On(JoinEvent, g.JoinHandler)
	router.On(SetAnonEvent, g.SetAnonHandler)
	router.On(TypingEvent, g.TypingHandler)
	router.On(StopTypingEvent, g.StopTypingHandler)
	router.On(MessageEvent, g.MessageHandler)
}

func (g *Gateway) JoinHandler(ctx context.Context, e *Event) error {
	var payload JoinPayload
	if err := e.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.GroupID == "" {
		payload.GroupID = DefaultGroup
	}

	prev, rejoined := g.registry.Join(e.ConnID, payload.UserName, payload.GroupID)
	if rejoined && prev.GroupID != payload.GroupID {
		if err := g.broadcastPresence(prev.GroupID); err != nil {
			return err
		}
	}

	if err := g.broadcastPresence(payload.GroupID); err != nil {
		return err
	}
	return g.broadcaster.BroadcastToOthers(e.ConnID, payload.GroupID, SystemMessageEvent,
		SystemMessage{Message: fmt.Sprintf("%s joined the group.", payload.UserName)})
}

// SetAnonHandler is ignored for connections that have not joined a group.
func (g *Gateway) SetAnonHandler(ctx context.Context, e *Event) error {
	var payload SetAnonPayload
	if err := e.DecodePayload(&payload); err != nil {
		return err
	}

	entry, ok := g.registry.SetAnonymous(e.ConnID, payload.IsAnon)
	if !ok {
		return nil
	}
	return g.broadcastPresence(entry.GroupID)
}

// TypingHandler relays the indicator to the other members of the group named in the payload.
func (g *Gateway) TypingHandler(ctx context.Context, e *Event) error {
	var payload TypingPayload
	if err := e.DecodePayload(&payload); err != nil {
		return err
	}
	isTyping := true
	if payload.IsTyping != nil {
		isTyping = *payload.IsTyping
	}
	return g.broadcaster.BroadcastToOthers(e.ConnID, payload.GroupID, TypingEvent,
		TypingNotice{UserName: payload.UserName, IsTyping: isTyping})
}

func (g *Gateway) StopTypingHandler(ctx context.Context, e *Event) error {
	var payload StopTypingPayload
	if err := e.DecodePayload(&payload); err != nil {
		return err
	}
	return g.broadcaster.BroadcastToOthers(e.ConnID, payload.GroupID, StopTypingEvent,
		StopTypingNotice{UserName: payload.UserName})
}

// MessageHandler persists the message and broadcasts it to the whole group, author included.
// Display names are not checked, an empty one is stored as is.
// When the store fails only the author is notified and nothing is broadcast.
// The author may have disconnected while the store was busy, the transport then drops the notice.
func (g *Gateway) MessageHandler(ctx context.Context, e *Event) error {
	var payload MessagePayload
	if err := e.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.GroupID == "" {
		payload.GroupID = DefaultGroup
	}

	input := MessageCreateInput{
		GroupID:     payload.GroupID,
		DisplayName: payload.UserName,
		IsAnonymous: payload.IsAnon,
		Body:        payload.Message,
	}
	if payload.IsAnon {
		input.DisplayName = AnonymousName
	}

	msg, err := g.store.AppendMessage(ctx, input)
	if err != nil {
		g.logger.Error("saving message", zap.String("conn", e.ConnID),
			zap.String("group", input.GroupID), zap.String("store", g.store.Name()), zap.Error(err))
		return g.broadcaster.SendTo(e.ConnID, ErrorMessageEvent, ErrorMessage{Error: ErrSaveMessage})
	}

	return g.broadcaster.BroadcastToGroup(msg.GroupID, MessageEvent, msg)
}

// Disconnect removes the connection from its group and tells the remaining members.
// It is a no-op for connections that never joined or were already removed.
func (g *Gateway) Disconnect(connID string) {
	entry, ok := g.registry.Leave(connID)
	if !ok {
		return
	}

	if err := g.broadcastPresence(entry.GroupID); err != nil {
		g.logger.Error("broadcasting presence", zap.String("group", entry.GroupID), zap.Error(err))
	}
	err := g.broadcaster.BroadcastToGroup(entry.GroupID, SystemMessageEvent,
		SystemMessage{Message: fmt.Sprintf("%s left the group.", entry.DisplayName)})
	if err != nil {
		g.logger.Error("broadcasting leave notice", zap.String("group", entry.GroupID), zap.Error(err))
	}
}

func (g *Gateway) broadcastPresence(groupID string) error {
	return g.broadcaster.BroadcastPresence(groupID)
}
