package core

// Client is one websocket connection as seen by the core layer.
// ID doubles as the connection identity reported to the client.
type Client struct {
	ID     string
	Room   string
	Events chan *Event
}

// NewClient constructs a client bound to a room with an initialized event queue.
func NewClient(id, room string) *Client {
	return &Client{
		ID:     id,
		Room:   room,
		Events: make(chan *Event, 32),
	}
}
