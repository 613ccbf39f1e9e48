package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/config"
	"github.com/vovakirdan/wirechat-room/internal/core"
	"github.com/vovakirdan/wirechat-room/internal/store"
)

// Hub is the part of core.Hub the transport layer drives.
type Hub interface {
	RegisterClient(c *core.Client) error
	UnregisterClient(c *core.Client)
	Disconnect(roomID, connectionID string) (bool, error)
	Submit(cmd *core.Command) error
}

// NewRouter builds the gin engine serving the plain HTTP endpoints.
func NewRouter(hub Hub, st store.MessageStore, cfg config.Server, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	messages := NewMessageHandlers(hub, st, cfg.HistoryLimit, logger)
	router.GET("/health", healthHandler)
	router.GET("/messages", messages.ListMessages)
	router.DELETE("/connection", messages.DeleteConnection)

	return router
}

// NewHandler mounts the websocket endpoint next to the gin engine. gin's
// writer refuses to hijack once the 101 status is written, so /ws bypasses it.
func NewHandler(hub Hub, st store.MessageStore, cfg config.Server, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, logger))
	mux.Handle("/", NewRouter(hub, st, cfg, logger))
	return mux
}

// NewServer builds an HTTP server with all routes mounted.
func NewServer(hub Hub, st store.MessageStore, cfg config.Server, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(hub, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
