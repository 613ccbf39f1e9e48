package channel

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

const (
	defaultDialTimeout   = 10 * time.Second
	defaultWriteTimeout  = 5 * time.Second
	defaultNotifyTimeout = 5 * time.Second
	defaultCloseTimeout  = 2 * time.Second
	readLimitBytes       = 1 << 20
)

var errClosedWhileDialing = errors.New("closed while dialing")

// Handler receives channel events. Calls come from the channel's read
// goroutine, one at a time.
type Handler interface {
	HandleMessage(msg proto.Message)
	HandleConnectionID(id string)
	// HandleClose is called exactly once. err is nil for a clean close.
	HandleClose(err error)
}

// Options configures a Manager.
type Options struct {
	RoomID   string
	WSBase   string
	Handler  Handler
	Notifier Notifier
	Logger   *zerolog.Logger

	// HTTPClient is used for the websocket upgrade request.
	HTTPClient *stdhttp.Client

	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	NotifyTimeout time.Duration
	// CloseTimeout bounds the closing handshake in Close; after it the
	// connection is dropped without one.
	CloseTimeout time.Duration
	// HandshakeTimeout, when set, logs a warning if no connection identity
	// arrives in time after open. The channel stays open.
	HandshakeTimeout time.Duration
}

// Manager owns one websocket channel bound to one room.
type Manager struct {
	roomID     string
	wsURL      string
	handler    Handler
	notifier   Notifier
	log        *zerolog.Logger
	httpClient *stdhttp.Client

	dialTimeout      time.Duration
	writeTimeout     time.Duration
	notifyTimeout    time.Duration
	closeTimeout     time.Duration
	handshakeTimeout time.Duration

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	connectionID *string
	closing      bool
	watchdog     *time.Timer

	ctx        context.Context
	cancel     context.CancelFunc
	finishOnce sync.Once
	done       chan struct{}
	notified   chan struct{}
}

// Open creates the channel and starts dialing in the background. The returned
// manager is in StateConnecting; Close must be called on every exit path.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	wsURL, err := dialURL(opts.WSBase, opts.RoomID)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		roomID:           opts.RoomID,
		wsURL:            wsURL,
		handler:          opts.Handler,
		notifier:         opts.Notifier,
		log:              opts.Logger,
		httpClient:       opts.HTTPClient,
		dialTimeout:      durationOr(opts.DialTimeout, defaultDialTimeout),
		writeTimeout:     durationOr(opts.WriteTimeout, defaultWriteTimeout),
		notifyTimeout:    durationOr(opts.NotifyTimeout, defaultNotifyTimeout),
		closeTimeout:     durationOr(opts.CloseTimeout, defaultCloseTimeout),
		handshakeTimeout: opts.HandshakeTimeout,
		state:            StateConnecting,
		done:             make(chan struct{}),
		notified:         make(chan struct{}),
	}
	if m.handler == nil {
		m.handler = nopHandler{}
	}
	if m.log == nil {
		nop := zerolog.Nop()
		m.log = &nop
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	go m.run()
	return m, nil
}

func dialURL(wsBase, roomID string) (string, error) {
	u, err := url.Parse(wsBase)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("parse websocket url: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("room_id", roomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RoomID returns the room this channel is bound to.
func (m *Manager) RoomID() string {
	return m.roomID
}

// State returns the current lifecycle stage.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the last identity received, or nil.
func (m *Manager) ConnectionID() *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectionID == nil {
		return nil
	}
	id := *m.connectionID
	return &id
}

// Done is closed once the channel reached StateClosed and its read loop exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Notified is closed once the close notification attempt has finished.
func (m *Manager) Notified() <-chan struct{} {
	return m.notified
}

// Send forwards a chat message. It is a silent no-op unless the channel is open.
func (m *Manager) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		m.log.Debug().Str("room_id", m.roomID).Stringer("state", state).Msg("send dropped: channel not open")
		return nil
	}
	conn := m.conn
	m.mu.Unlock()

	if err := m.write(ctx, conn, proto.SendMessageAction(m.roomID, text)); err != nil {
		m.mu.Lock()
		closing := m.closing
		m.mu.Unlock()
		if closing {
			m.log.Debug().Err(err).Str("room_id", m.roomID).Msg("send dropped: channel closed during write")
			return nil
		}
		m.log.Warn().Err(err).Str("room_id", m.roomID).Msg("write ws message")
		// A failed write leaves the stream unusable; the read loop picks up the close.
		_ = conn.CloseNow()
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Close tears the channel down and waits for the read loop to exit. It does
// not wait for the close notification. A peer that does not answer the
// closing handshake within the close timeout is dropped. Safe to call more
// than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closing = true
	m.state = StateClosed
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		m.closeConn(conn)
	}
	m.cancel()
	<-m.done
}

func (m *Manager) closeConn(conn *websocket.Conn) {
	closed := make(chan error, 1)
	go func() {
		closed <- conn.Close(websocket.StatusNormalClosure, "session closed")
	}()

	timer := time.NewTimer(m.closeTimeout)
	defer timer.Stop()

	select {
	case err := <-closed:
		if err != nil {
			m.log.Debug().Err(err).Str("room_id", m.roomID).Msg("ws close")
		}
	case <-timer.C:
		// CloseNow would wait on the pending handshake; cancelling the read
		// context closes the underlying connection instead.
		m.log.Debug().Str("room_id", m.roomID).Dur("timeout", m.closeTimeout).Msg("closing handshake timed out, dropping connection")
		m.cancel()
	}
}

func (m *Manager) run() {
	defer close(m.done)

	conn, err := m.dial()
	if err != nil {
		m.finish(fmt.Errorf("dial: %w", err))
		return
	}
	if err := m.open(conn); err != nil {
		_ = conn.CloseNow()
		m.finish(err)
		return
	}

	m.finish(m.readLoop(conn))
}

func (m *Manager) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, m.wsURL, &websocket.DialOptions{
		HTTPClient: m.httpClient,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimitBytes)
	return conn, nil
}

// open sends the handshake and only then exposes the channel as open, so no
// chat frame can overtake it.
func (m *Manager) open(conn *websocket.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return errClosedWhileDialing
	}
	m.conn = conn

	if err := m.write(m.ctx, conn, proto.HandshakeAction()); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	m.state = StateOpen
	m.log.Debug().Str("room_id", m.roomID).Msg("channel open")

	if m.handshakeTimeout > 0 {
		m.watchdog = time.AfterFunc(m.handshakeTimeout, m.checkHandshake)
	}
	return nil
}

func (m *Manager) checkHandshake() {
	m.mu.Lock()
	missing := m.state == StateOpen && m.connectionID == nil
	m.mu.Unlock()
	if missing {
		m.log.Warn().Str("room_id", m.roomID).Dur("timeout", m.handshakeTimeout).Msg("no connection id received after handshake")
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(m.ctx)
		if err != nil {
			return err
		}

		frame, err := proto.DecodeFrame(data)
		if err != nil {
			m.log.Warn().Err(err).Str("room_id", m.roomID).Msg("drop inbound frame")
			continue
		}
		m.dispatch(frame)
	}
}

func (m *Manager) dispatch(frame proto.Frame) {
	if m.State() != StateOpen {
		return
	}

	switch f := frame.(type) {
	case proto.MessageFrame:
		m.handler.HandleMessage(f.Message)
	case proto.ConnectionFrame:
		id := f.ConnectionID
		m.mu.Lock()
		m.connectionID = &id
		m.mu.Unlock()
		m.log.Debug().Str("room_id", m.roomID).Str("connection_id", id).Msg("connection id assigned")
		m.handler.HandleConnectionID(id)
	default:
		m.log.Debug().Str("room_id", m.roomID).Str("frame_type", frame.FrameType()).Msg("unknown frame type")
	}
}

// finish moves the channel to StateClosed and fires the close notification.
// Only the first call has any effect.
func (m *Manager) finish(cause error) {
	m.finishOnce.Do(func() {
		m.mu.Lock()
		explicit := m.closing
		m.state = StateClosed
		if m.watchdog != nil {
			m.watchdog.Stop()
		}
		var id *string
		if m.connectionID != nil {
			v := *m.connectionID
			id = &v
		}
		m.mu.Unlock()

		err := m.classify(cause, explicit)
		if err != nil {
			m.log.Warn().Err(err).Str("room_id", m.roomID).Msg("channel closed with error")
		} else {
			m.log.Debug().Str("room_id", m.roomID).Msg("channel closed")
		}

		go m.notify(id)
		m.handler.HandleClose(err)
	})
}

// classify maps the read loop's exit error to the error reported to the
// handler: nil for explicit teardown and normal close statuses.
func (m *Manager) classify(err error, explicit bool) error {
	if err == nil || explicit {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}

func (m *Manager) notify(connectionID *string) {
	defer close(m.notified)
	if m.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
	defer cancel()

	if err := m.notifier.NotifyClosed(ctx, m.roomID, connectionID); err != nil {
		m.log.Warn().Err(err).Str("room_id", m.roomID).Msg("close notification failed")
		return
	}
	m.log.Debug().Str("room_id", m.roomID).Bool("had_connection_id", connectionID != nil).Msg("close notification sent")
}

func (m *Manager) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

type nopHandler struct{}

func (nopHandler) HandleMessage(proto.Message) {}
func (nopHandler) HandleConnectionID(string)   {}
func (nopHandler) HandleClose(error)           {}
