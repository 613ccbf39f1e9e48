package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

// fakeBackend accepts websocket connections and records what clients send.
type fakeBackend struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan string
	rooms    chan string
	// gate, when non-nil, holds the upgrade until it is closed.
	gate chan struct{}
}

func newFakeBackend(t *testing.T, gate chan struct{}) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan string, 32),
		rooms:    make(chan string, 4),
		gate:     gate,
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serveWS))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) wsURL() string {
	return strings.Replace(b.srv.URL, "http", "ws", 1) + "/ws"
}

func (b *fakeBackend) serveWS(w http.ResponseWriter, r *http.Request) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-r.Context().Done():
			return
		}
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	b.rooms <- r.URL.Query().Get("room_id")
	b.conns <- conn

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		// wsjson ends every frame with a newline.
		b.received <- strings.TrimSpace(string(data))
	}
}

func (b *fakeBackend) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection accepted")
		return nil
	}
}

func (b *fakeBackend) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case f := <-b.received:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

func (b *fakeBackend) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-b.received:
		t.Fatalf("unexpected frame: %s", f)
	case <-time.After(wait):
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

type notifyCall struct {
	RoomID       string
	ConnectionID *string
}

type fakeNotifier struct {
	calls chan notifyCall
	err   error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan notifyCall, 4)}
}

func (n *fakeNotifier) NotifyClosed(_ context.Context, roomID string, connectionID *string) error {
	n.calls <- notifyCall{RoomID: roomID, ConnectionID: connectionID}
	return n.err
}

func (n *fakeNotifier) next(t *testing.T) notifyCall {
	t.Helper()
	select {
	case c := <-n.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("close notification not sent")
		return notifyCall{}
	}
}

type recorder struct {
	mu       sync.Mutex
	messages []proto.Message
	ids      []string
	closed   chan error
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan error, 4)}
}

func (r *recorder) HandleMessage(msg proto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) HandleConnectionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) HandleClose(err error) {
	r.closed <- err
}

func (r *recorder) snapshot() ([]proto.Message, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.Message(nil), r.messages...), append([]string(nil), r.ids...)
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
