package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

type inboundFrame struct {
	room  string
	frame string
}

type acceptedConn struct {
	room string
	conn *websocket.Conn
}

// backend fakes the three chat endpoints.
type backend struct {
	srv *httptest.Server

	mu            sync.Mutex
	history       map[string][]proto.Message
	historyStatus int
	historyGate   chan struct{}

	conns    chan acceptedConn
	received chan inboundFrame
	deletes  chan proto.DeleteConnectionRequest
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{
		history:  make(map[string][]proto.Message),
		conns:    make(chan acceptedConn, 8),
		received: make(chan inboundFrame, 64),
		deletes:  make(chan proto.DeleteConnectionRequest, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/messages", b.serveMessages)
	mux.HandleFunc("/connection", b.serveConnection)
	mux.HandleFunc("/ws", b.serveWS)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) deps() Deps {
	return Deps{
		Config: Config{
			APIBase: b.srv.URL,
			WSBase:  strings.Replace(b.srv.URL, "http", "ws", 1) + "/ws",
		},
		HTTPClient: b.srv.Client(),
	}
}

func (b *backend) setHistory(room string, msgs ...proto.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[room] = msgs
}

func (b *backend) setHistoryGate(gate chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyGate = gate
}

func (b *backend) setHistoryStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyStatus = status
}

func (b *backend) serveMessages(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.historyGate
	status := b.historyStatus
	msgs := b.history[r.URL.Query().Get("room_id")]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if msgs == nil {
		msgs = []proto.Message{}
	}
	_ = json.NewEncoder(w).Encode(proto.HistoryResponse{Messages: msgs})
}

func (b *backend) serveConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req proto.DeleteConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.deletes <- req
	w.WriteHeader(http.StatusOK)
}

func (b *backend) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	room := r.URL.Query().Get("room_id")
	b.conns <- acceptedConn{room: room, conn: conn}

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		// wsjson ends every frame with a newline.
		b.received <- inboundFrame{room: room, frame: strings.TrimSpace(string(data))}
	}
}

func (b *backend) nextConn(t *testing.T) acceptedConn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection accepted")
		return acceptedConn{}
	}
}

func (b *backend) nextFrame(t *testing.T) inboundFrame {
	t.Helper()
	select {
	case f := <-b.received:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return inboundFrame{}
	}
}

func (b *backend) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-b.received:
		t.Fatalf("unexpected frame from %s: %s", f.room, f.frame)
	case <-time.After(wait):
	}
}

func (b *backend) nextDelete(t *testing.T) proto.DeleteConnectionRequest {
	t.Helper()
	select {
	case d := <-b.deletes:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no close notification received")
		return proto.DeleteConnectionRequest{}
	}
}

func (b *backend) expectNoDelete(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-b.deletes:
		t.Fatalf("unexpected close notification: %+v", d)
	case <-time.After(wait):
	}
}

func sendMessageFrame(t *testing.T, conn *websocket.Conn, msg proto.Message) {
	t.Helper()
	data, err := proto.EncodeMessageFrame(msg)
	if err != nil {
		t.Fatalf("encode message frame: %v", err)
	}
	writeRaw(t, conn, data)
}

func sendConnectionFrame(t *testing.T, conn *websocket.Conn, id string) {
	t.Helper()
	data, err := proto.EncodeConnectionFrame(id)
	if err != nil {
		t.Fatalf("encode connection frame: %v", err)
	}
	writeRaw(t, conn, data)
}

func writeRaw(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func texts(msgs []proto.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func equalTexts(msgs []proto.Message, want ...string) bool {
	got := texts(msgs)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
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
