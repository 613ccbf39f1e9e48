package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/store"
	"github.com/vovakirdan/wirechat-room/internal/utils"
)

const saveTimeout = 5 * time.Second

// Hub owns rooms and connected clients. All state is touched only from the
// Run loop; public methods hand work to it.
type Hub struct {
	store store.MessageStore
	log   *zerolog.Logger

	ops  chan func()
	done chan struct{}

	// loop-owned
	ctx     context.Context
	clients map[string]*Client
	rooms   map[string]*Room

	newID func() string
	now   func() time.Time
}

// NewHub creates a hub. st may be nil, in which case messages are only relayed.
func NewHub(st store.MessageStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:   st,
		log:     logger,
		ops:     make(chan func()),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		clients: make(map[string]*Client),
		rooms:   make(map[string]*Room),
		newID:   utils.NewID,
		now:     time.Now,
	}
}

// Run processes hub operations until ctx is cancelled. Remaining clients get
// their event queues closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.ctx = ctx

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case op := <-h.ops:
			op()
		}
	}
}

// do runs fn on the hub loop and waits for it to finish.
func (h *Hub) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	}
	<-finished
	return nil
}

// RegisterClient adds a client to its room.
func (h *Hub) RegisterClient(c *Client) error {
	return h.do(func() {
		h.clients[c.ID] = c
		room, ok := h.rooms[c.Room]
		if !ok {
			room = NewRoom(c.Room)
			h.rooms[c.Room] = room
		}
		room.AddClient(c)
		h.log.Debug().Str("connection_id", c.ID).Str("room_id", c.Room).Msg("client registered")
	})
}

// UnregisterClient removes a client if it is still registered.
func (h *Hub) UnregisterClient(c *Client) {
	_ = h.do(func() {
		if current, ok := h.clients[c.ID]; ok && current == c {
			h.remove(c)
		}
	})
}

// Disconnect drops the connection with the given identity. roomID, when set,
// must match the client's room. Reports whether a client was removed.
func (h *Hub) Disconnect(roomID, connectionID string) (bool, error) {
	var removed bool
	err := h.do(func() {
		c, ok := h.clients[connectionID]
		if !ok || (roomID != "" && c.Room != roomID) {
			return
		}
		h.remove(c)
		removed = true
	})
	return removed, err
}

// Submit executes a client command.
func (h *Hub) Submit(cmd *Command) error {
	return h.do(func() { h.handle(cmd) })
}

// RoomSize returns the number of clients connected to a room.
func (h *Hub) RoomSize(roomID string) (int, error) {
	var n int
	err := h.do(func() {
		if room, ok := h.rooms[roomID]; ok {
			n = room.Len()
		}
	})
	return n, err
}

func (h *Hub) handle(cmd *Command) {
	c := cmd.Client
	if current, ok := h.clients[c.ID]; !ok || current != c {
		h.log.Debug().Str("connection_id", c.ID).Msg("command from unregistered client ignored")
		return
	}

	switch cmd.Kind {
	case CommandRequestConnectionID:
		deliver(c, &Event{Kind: EventConnectionID, ConnectionID: c.ID})
	case CommandSendRoomMessage:
		h.sendRoomMessage(c, cmd.Text)
	default:
		deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
	}
}

func (h *Hub) sendRoomMessage(c *Client, text string) {
	if strings.TrimSpace(text) == "" {
		deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "text is required")})
		return
	}

	msg := Message{
		ID:        h.newID(),
		Room:      c.Room,
		Text:      text,
		CreatedAt: h.now().UTC(),
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(h.ctx, saveTimeout)
		err := h.store.SaveMessage(ctx, &store.Message{
			ID:        msg.ID,
			RoomID:    msg.Room,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
		})
		cancel()
		if err != nil {
			h.log.Error().Err(err).Str("room_id", msg.Room).Msg("failed to save message")
			deliver(c, &Event{Kind: EventError, Error: coreError(ErrCodeStorage, "message not saved")})
			return
		}
	}

	if room, ok := h.rooms[c.Room]; ok {
		n := room.Broadcast(&Event{Kind: EventRoomMessage, Message: msg})
		h.log.Debug().Str("room_id", msg.Room).Str("message_id", msg.ID).Int("recipients", n).Msg("message broadcast")
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c.ID)
	if room, ok := h.rooms[c.Room]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, c.Room)
		}
	}
	close(c.Events)
	h.log.Debug().Str("connection_id", c.ID).Str("room_id", c.Room).Msg("client removed")
}

func (h *Hub) shutdown() {
	for _, c := range h.clients {
		close(c.Events)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]*Room)
}

// deliver queues event for c without blocking the hub loop.
func deliver(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}
