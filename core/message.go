package core

import (
	"context"
	"errors"
	"time"
)

// DefaultGroup is the group used when a client omits the group id.
const DefaultGroup = "fun_friday"

// Message represents a chat message sent to a group.
type Message struct {
	// ID is nil when the message was never written to a durable store.
	ID      *int64 `json:"id"`
	GroupID string `json:"group_id"`
	// UserName is the display name of the author, "Anonymous" for anonymous messages.
	UserName  string    `json:"user_name"`
	IsAnon    bool      `json:"is_anon"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrStoreUnavailable is returned when a durable store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidMessage is returned when a message is invalid.
	ErrInvalidMessage = errors.New("invalid message")
)

// MessageCreateInput represents the input for appending a message.
// Only the group is required. Empty display names and bodies are valid.
type MessageCreateInput struct {
	GroupID     string `json:"group_id" validate:"required"`
	DisplayName string `json:"user_name"`
	IsAnonymous bool   `json:"is_anon"`
	Body        string `json:"message"`
}

// Validate validates the message input.
func (m *MessageCreateInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}

func (m *MessageCreateInput) message(now time.Time) Message {
	return Message{
		GroupID:   m.GroupID,
		UserName:  m.DisplayName,
		IsAnon:    m.IsAnonymous,
		Body:      m.Body,
		CreatedAt: now.UTC(),
	}
}

// MessageStore is the append-only log of chat messages, keyed by group.
type MessageStore interface {
	// AppendMessage persists a message and returns it with its id and timestamp set.
	// If the input is invalid, it returns ErrInvalidMessage.
	AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// ListMessages returns every message of the group ordered by creation time, ties broken by id.
	// An unknown group yields an empty, non-nil slice.
	ListMessages(ctx context.Context, groupID string) ([]Message, error)

	// JoinGroup records userName as a member of the group, refreshing the join time if it already is one.
	JoinGroup(ctx context.Context, groupID, userName string) error

	// Persistent reports whether messages survive a restart of the process.
	Persistent() bool

	// Name identifies the backend, e.g. "sqlite" or "memory".
	Name() string

	Close() error
}
