package session

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/channel"
	"github.com/vovakirdan/wirechat-room/internal/history"
	"github.com/vovakirdan/wirechat-room/internal/proto"
)

const defaultUpdateBuffer = 64

// ErrNoRoom is returned when a session is opened without a room id.
var ErrNoRoom = errors.New("room id is required")

// Fetcher loads the history of a room.
type Fetcher interface {
	Fetch(ctx context.Context, roomID string) ([]proto.Message, error)
}

// Config holds the endpoints and tunables injected into every session.
type Config struct {
	APIBase string
	WSBase  string

	// Dedupe drops messages whose id is already in the list.
	Dedupe bool

	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	NotifyTimeout    time.Duration
	HandshakeTimeout time.Duration
	UpdateBuffer     int
}

// Deps bundles a session's collaborators. Fetcher and Notifier default to
// HTTP implementations against Config.APIBase.
type Deps struct {
	Config     Config
	Fetcher    Fetcher
	Notifier   channel.Notifier
	HTTPClient *stdhttp.Client
	Logger     *zerolog.Logger
}

// UpdateKind says what changed in a session.
type UpdateKind int

const (
	// UpdateHistory reports the history fetch outcome. Err is set on failure.
	UpdateHistory UpdateKind = iota
	// UpdateMessage reports one live message appended to the list.
	UpdateMessage
	// UpdateConnection reports a new connection identity.
	UpdateConnection
	// UpdateClosed reports that the channel closed. Err is set for abnormal closes.
	UpdateClosed
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateHistory:
		return "history"
	case UpdateMessage:
		return "message"
	case UpdateConnection:
		return "connection"
	case UpdateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Update is a render-ready notification.
type Update struct {
	Kind         UpdateKind
	Message      proto.Message   // UpdateMessage
	Messages     []proto.Message // UpdateHistory: full list after the merge
	ConnectionID string          // UpdateConnection
	Err          error
}

// Session follows one room: its history, its live channel and the merged
// message list.
type Session struct {
	roomID string
	dedupe bool
	log    *zerolog.Logger
	conn   *channel.Manager

	ctx       context.Context
	cancel    context.CancelFunc
	fetchDone chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	messages      []proto.Message
	seen          map[string]struct{}
	historyLoaded bool
	historyErr    error
	closed        bool
	updates       chan Update
}

// Open starts a session: the history fetch runs in the background and the
// channel starts dialing. Close must be called when the session ends.
func Open(ctx context.Context, deps Deps, roomID string) (*Session, error) {
	if roomID == "" {
		return nil, ErrNoRoom
	}

	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = history.NewFetcher(deps.Config.APIBase, deps.HTTPClient, logger)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = channel.NewHTTPNotifier(deps.Config.APIBase, deps.HTTPClient)
	}
	buffer := deps.Config.UpdateBuffer
	if buffer <= 0 {
		buffer = defaultUpdateBuffer
	}

	sessionLog := logger.With().Str("room_id", roomID).Logger()
	s := &Session{
		roomID:    roomID,
		dedupe:    deps.Config.Dedupe,
		log:       &sessionLog,
		fetchDone: make(chan struct{}),
		messages:  []proto.Message{},
		seen:      make(map[string]struct{}),
		updates:   make(chan Update, buffer),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, err := channel.Open(s.ctx, channel.Options{
		RoomID:           roomID,
		WSBase:           deps.Config.WSBase,
		Handler:          s,
		Notifier:         notifier,
		Logger:           logger,
		HTTPClient:       deps.HTTPClient,
		DialTimeout:      deps.Config.DialTimeout,
		WriteTimeout:     deps.Config.WriteTimeout,
		NotifyTimeout:    deps.Config.NotifyTimeout,
		HandshakeTimeout: deps.Config.HandshakeTimeout,
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s.conn = conn

	go s.loadHistory(fetcher)

	s.log.Info().Msg("session opened")
	return s, nil
}

// RoomID returns the room this session follows.
func (s *Session) RoomID() string {
	return s.roomID
}

// Messages returns a copy of the current message list.
func (s *Session) Messages() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Message(nil), s.messages...)
}

// ConnectionID returns the server-assigned identity, or nil before it arrives.
func (s *Session) ConnectionID() *string {
	return s.conn.ConnectionID()
}

// State returns the channel state.
func (s *Session) State() channel.State {
	return s.conn.State()
}

// HistoryLoaded reports whether the history fetch succeeded.
func (s *Session) HistoryLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLoaded
}

// HistoryErr returns the history fetch failure, if any.
func (s *Session) HistoryErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyErr
}

// Updates yields render-ready notifications. Notifications are dropped when
// the reader lags; Messages always has the full list. The channel is closed
// by Close.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Done is closed when the channel has closed, for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

// Notified is closed once the close notification attempt has finished.
func (s *Session) Notified() <-chan struct{} {
	return s.conn.Notified()
}

// Send forwards text to the channel. Blank text is suppressed and sends
// while the channel is not open are dropped; both return nil.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		s.log.Debug().Msg("blank message suppressed")
		return nil
	}
	return s.conn.Send(ctx, text)
}

// Close closes the channel, stops a pending history fetch and closes the
// updates channel. Only the first call does anything.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.cancel()
		<-s.fetchDone

		s.mu.Lock()
		s.closed = true
		close(s.updates)
		s.mu.Unlock()

		s.log.Info().Msg("session closed")
	})
}

// HandleMessage appends a live message.
func (s *Session) HandleMessage(msg proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.dedupe && msg.ID != "" {
		if _, dup := s.seen[msg.ID]; dup {
			s.log.Debug().Str("message_id", msg.ID).Msg("duplicate message dropped")
			return
		}
		s.seen[msg.ID] = struct{}{}
	}
	s.messages = append(s.messages, msg)
	s.emit(Update{Kind: UpdateMessage, Message: msg})
}

// HandleConnectionID relays a new identity to update readers.
func (s *Session) HandleConnectionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Update{Kind: UpdateConnection, ConnectionID: id})
}

// HandleClose relays the channel close to update readers.
func (s *Session) HandleClose(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(Update{Kind: UpdateClosed, Err: err})
}

func (s *Session) loadHistory(fetcher Fetcher) {
	defer close(s.fetchDone)

	msgs, err := fetcher.Fetch(s.ctx, s.roomID)
	if s.ctx.Err() != nil {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("history unavailable, continuing without it")
		s.mu.Lock()
		s.historyErr = err
		s.emit(Update{Kind: UpdateHistory, Err: err})
		s.mu.Unlock()
		return
	}
	s.applyHistory(msgs)
}

// applyHistory puts the fetched batch in front of any live messages that
// arrived before it.
func (s *Session) applyHistory(batch []proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]proto.Message, 0, len(batch)+len(s.messages))
	if !s.dedupe {
		merged = append(merged, batch...)
		merged = append(merged, s.messages...)
	} else {
		seen := make(map[string]struct{}, cap(merged))
		for _, group := range [][]proto.Message{batch, s.messages} {
			for _, msg := range group {
				if msg.ID != "" {
					if _, dup := seen[msg.ID]; dup {
						continue
					}
					seen[msg.ID] = struct{}{}
				}
				merged = append(merged, msg)
			}
		}
		s.seen = seen
	}

	s.messages = merged
	s.historyLoaded = true
	s.log.Debug().Int("history", len(batch)).Int("total", len(merged)).Msg("history applied")
	s.emit(Update{Kind: UpdateHistory, Messages: append([]proto.Message(nil), merged...)})
}

// emit must be called with s.mu held.
func (s *Session) emit(u Update) {
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
		s.log.Debug().Stringer("kind", u.Kind).Msg("update dropped: slow reader")
	}
}
