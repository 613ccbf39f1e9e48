package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnectionID tells a client its connection identity.
	EventConnectionID EventKind = iota
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	ConnectionID string
	Message      Message
	Error        *CoreError
}
