package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

// maxBodyBytes bounds how much of a history response is read.
const maxBodyBytes = 8 << 20

// FetchError reports a failed or malformed history retrieval.
type FetchError struct {
	RoomID string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch history for room %q: status %d: %v", e.RoomID, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch history for room %q: %v", e.RoomID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the existing messages of a room with a single request.
type Fetcher struct {
	endpoint string
	client   *stdhttp.Client
	log      *zerolog.Logger
}

// NewFetcher builds a fetcher against {apiBase}/messages.
// A nil client falls back to http.DefaultClient.
func NewFetcher(apiBase string, client *stdhttp.Client, logger *zerolog.Logger) *Fetcher {
	if client == nil {
		client = stdhttp.DefaultClient
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Fetcher{
		endpoint: strings.TrimRight(apiBase, "/") + "/messages",
		client:   client,
		log:      logger,
	}
}

// Fetch returns the room history in server order. It never retries.
func (f *Fetcher) Fetch(ctx context.Context, roomID string) ([]proto.Message, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, &FetchError{RoomID: roomID, Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	q := u.Query()
	q.Set("room_id", roomID)
	u.RawQuery = q.Encode()

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{RoomID: roomID, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{RoomID: roomID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &FetchError{RoomID: roomID, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var body proto.HistoryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, &FetchError{RoomID: roomID, Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if body.Messages == nil {
		body.Messages = []proto.Message{}
	}

	f.log.Debug().Str("room_id", roomID).Int("count", len(body.Messages)).Msg("history fetched")
	return body.Messages, nil
}
