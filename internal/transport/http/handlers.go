package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/core"
	"github.com/vovakirdan/wirechat-room/internal/proto"
	"github.com/vovakirdan/wirechat-room/internal/store"
)

// timeLayout is the created_at format of every message leaving the server.
const timeLayout = time.RFC3339Nano

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeleteConnectionResponse reports whether a live connection was dropped.
type DeleteConnectionResponse struct {
	Deleted bool `json:"deleted"`
}

// MessageHandlers serves room history and connection cleanup.
type MessageHandlers struct {
	hub   Hub
	store store.MessageStore
	limit int
	log   *zerolog.Logger
}

// NewMessageHandlers creates the handlers. st may be nil, in which case every
// room has an empty history.
func NewMessageHandlers(hub Hub, st store.MessageStore, limit int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		hub:   hub,
		store: st,
		limit: limit,
		log:   logger,
	}
}

// ListMessages returns the room history, oldest first.
// GET /messages?room_id=...
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	roomID := c.Query("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_id is required"})
		return
	}

	resp := proto.HistoryResponse{Messages: []proto.Message{}}
	if h.store == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), roomID, h.limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, proto.Message{
			ID:        msg.ID,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt.UTC().Format(timeLayout),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteConnection forgets a connection once its client closed the channel.
// DELETE /connection
func (h *MessageHandlers) DeleteConnection(c *gin.Context) {
	var req proto.DeleteConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.RoomID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_id is required"})
		return
	}

	// The client closed before it learned its identity; nothing to drop.
	if req.ConnectionID == nil || *req.ConnectionID == "" {
		c.JSON(http.StatusOK, DeleteConnectionResponse{})
		return
	}

	deleted, err := h.hub.Disconnect(req.RoomID, *req.ConnectionID)
	if err != nil {
		if errors.Is(err, core.ErrHubStopped) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
			return
		}
		h.log.Error().Err(err).Msg("failed to delete connection")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().
		Str("room_id", req.RoomID).
		Str("connection_id", *req.ConnectionID).
		Bool("deleted", deleted).
		Msg("connection delete requested")
	c.JSON(http.StatusOK, DeleteConnectionResponse{Deleted: deleted})
}
