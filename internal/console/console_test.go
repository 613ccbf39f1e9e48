package console

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/config"
	"github.com/vovakirdan/wirechat-room/internal/core"
	"github.com/vovakirdan/wirechat-room/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-room/internal/transport/http"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, out *syncBuffer, substr string, count int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Count(out.String(), substr) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %d x %q:\n%s", count, substr, out.String())
}

// startDevserver runs the backend over httptest. deleteDelay holds every
// DELETE /connection back; finished deletes are counted.
func startDevserver(t *testing.T, deleteDelay time.Duration) (config.Client, *core.Hub, *atomic.Int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	hub := core.NewHub(st, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	deletes := &atomic.Int32{}
	handler := transporthttp.NewHandler(hub, st, config.DefaultServer(), &logger)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/connection" {
			handler.ServeHTTP(w, r)
			return
		}
		time.Sleep(deleteDelay)
		deletes.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		ts.CloseClientConnections()
		ts.Close()
		cancel()
	})

	cfg := config.DefaultClient()
	cfg.APIBase = ts.URL
	cfg.WSBase = strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	cfg.NotifyTimeout = 2 * time.Second
	return cfg, hub, deletes
}

func TestConsoleChatAndRoomSwitch(t *testing.T) {
	cfg, hub, _ := startDevserver(t, 0)

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	c, err := New(cfg, nil, inR, out)
	if err != nil {
		t.Fatalf("new console: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "general") }()

	waitFor(t, out, "* joined room general", 1)
	waitFor(t, out, "* connected as ", 1)
	waitFor(t, out, "* 0 message(s) in general", 1)

	if _, err := io.WriteString(inW, "hello there\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, out, "] hello there", 1)

	if _, err := io.WriteString(inW, "/room other\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, out, "* disconnected from general", 1)
	waitFor(t, out, "* joined room other", 1)
	waitFor(t, out, "* connected as ", 2)

	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := hub.RoomSize("general")
		if err == nil && n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("previous room still has %d connection(s) (%v)", n, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := io.WriteString(inW, "/quit\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("console did not exit")
	}

	if n, err := hub.RoomSize("other"); err != nil || n != 0 {
		t.Fatalf("room still has %d connection(s) after quit (%v)", n, err)
	}
	if !strings.Contains(out.String(), "* disconnected from other") {
		t.Fatalf("missing close line:\n%s", out.String())
	}
}

func TestQuitWaitsForEveryRoomLeft(t *testing.T) {
	cfg, _, deletes := startDevserver(t, 300*time.Millisecond)

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	c, err := New(cfg, nil, inR, out)
	if err != nil {
		t.Fatalf("new console: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Switch rooms and quit at once: both notifications are still in flight.
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "first") }()

	waitFor(t, out, "* connected as ", 1)
	if _, err := io.WriteString(inW, "/room second\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}
	waitFor(t, out, "* connected as ", 2)
	if _, err := io.WriteString(inW, "/quit\n"); err != nil {
		t.Fatalf("write input: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("console did not exit")
	}

	if n := deletes.Load(); n != 2 {
		t.Fatalf("expected both close notifications to finish before exit, got %d", n)
	}
}

func TestConsoleWithoutRoom(t *testing.T) {
	out := &syncBuffer{}
	c, err := New(config.DefaultClient(), nil, strings.NewReader("hi\n\n/room\n/room   \n"), out)
	if err != nil {
		t.Fatalf("new console: %v", err)
	}

	if err := c.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	if strings.Count(got, "* no room selected") != 2 {
		t.Fatalf("expected two hints, got:\n%s", got)
	}
	if strings.Count(got, "* usage: /room <id>") != 2 {
		t.Fatalf("expected two usage lines, got:\n%s", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultClient()
	cfg.WSBase = "ftp://example.com"

	if _, err := New(cfg, nil, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("expected config validation error")
	}
}
