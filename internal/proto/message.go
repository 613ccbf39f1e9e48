package proto

import "time"

// Message is a chat message as exchanged with the backend.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Time parses CreatedAt as RFC3339. The zero time is returned when the
// timestamp is missing or not in that layout.
func (m Message) Time() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// HistoryResponse is the body of GET /messages.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// DeleteConnectionRequest is the body of DELETE /connection.
// ConnectionID is nil when the channel closed before an identity was assigned.
type DeleteConnectionRequest struct {
	RoomID       string  `json:"room_id"`
	ConnectionID *string `json:"connection_id"`
}
