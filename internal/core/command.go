package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRequestConnectionID asks the hub to report the client's identity.
	CommandRequestConnectionID CommandKind = iota
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	Client *Client
	Text   string
}
