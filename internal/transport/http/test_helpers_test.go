package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/config"
	"github.com/vovakirdan/wirechat-room/internal/core"
	"github.com/vovakirdan/wirechat-room/internal/store/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv   *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
}

func (e *testEnv) wsURL(room string) string {
	return strings.Replace(e.srv.URL, "http", "ws", 1) + "/ws?room_id=" + room
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st := createTestStore(t)
	logger := zerolog.Nop()
	hub := core.NewHub(st, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cfg := config.DefaultServer()
	cfg.ReadHeaderTimeout = time.Second
	server := NewServer(hub, st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	// Registered after the store cleanup so it runs first.
	t.Cleanup(func() {
		ts.CloseClientConnections()
		ts.Close()
		cancel()
	})

	return &testEnv{srv: ts, hub: hub, store: st}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
