package store

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyRoom is returned when a message is saved or listed without a room.
var ErrEmptyRoom = errors.New("room id is required")

// Message represents a persisted chat message.
type Message struct {
	ID        string
	RoomID    string
	Text      string
	CreatedAt time.Time
}

// MessageStore persists room history.
type MessageStore interface {
	// SaveMessage appends a message to its room.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit of the most recent messages of a room,
	// oldest first. limit <= 0 means no limit.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// Store is the devserver persistence layer.
type Store interface {
	MessageStore
	Close() error
}
