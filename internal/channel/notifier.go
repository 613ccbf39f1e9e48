package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

// Notifier tells the backend that a channel went away.
type Notifier interface {
	NotifyClosed(ctx context.Context, roomID string, connectionID *string) error
}

// NotifyError reports a failed close notification.
type NotifyError struct {
	RoomID string
	Status int // 0 when no response was received
	Err    error
}

func (e *NotifyError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("notify close for room %q: status %d: %v", e.RoomID, e.Status, e.Err)
	}
	return fmt.Sprintf("notify close for room %q: %v", e.RoomID, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// HTTPNotifier calls DELETE {apiBase}/connection.
type HTTPNotifier struct {
	endpoint string
	client   *stdhttp.Client
}

// NewHTTPNotifier builds a notifier. A nil client falls back to http.DefaultClient.
func NewHTTPNotifier(apiBase string, client *stdhttp.Client) *HTTPNotifier {
	if client == nil {
		client = stdhttp.DefaultClient
	}
	return &HTTPNotifier{
		endpoint: strings.TrimRight(apiBase, "/") + "/connection",
		client:   client,
	}
}

// NotifyClosed sends {room_id, connection_id}; connectionID may be nil.
func (n *HTTPNotifier) NotifyClosed(ctx context.Context, roomID string, connectionID *string) error {
	payload, err := json.Marshal(proto.DeleteConnectionRequest{
		RoomID:       roomID,
		ConnectionID: connectionID,
	})
	if err != nil {
		return &NotifyError{RoomID: roomID, Err: fmt.Errorf("marshal body: %w", err)}
	}

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodDelete, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &NotifyError{RoomID: roomID, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &NotifyError{RoomID: roomID, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NotifyError{RoomID: roomID, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	return nil
}
