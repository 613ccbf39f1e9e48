// Package console is the terminal front end: it mounts one room at a time,
// prints the message list as it changes and sends stdin lines to the room.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-room/internal/config"
	"github.com/vovakirdan/wirechat-room/internal/proto"
	"github.com/vovakirdan/wirechat-room/internal/session"
)

const (
	cmdRoom = "/room"
	cmdQuit = "/quit"

	timeFormat = "15:04:05"

	defaultNotifyWait = 5 * time.Second
)

// Console reads commands from in and writes the transcript to out.
type Console struct {
	host          *session.Host
	notifyTimeout time.Duration
	log           *zerolog.Logger
	in            io.Reader

	outMu sync.Mutex
	out   io.Writer

	renderers sync.WaitGroup
	// every session opened by Run, current or torn down
	mounted []*session.Session
}

// SessionConfig maps the client configuration onto session settings.
func SessionConfig(cfg config.Client) session.Config {
	return session.Config{
		APIBase:          cfg.APIBase,
		WSBase:           cfg.WSBase,
		Dedupe:           cfg.DedupeMessages,
		DialTimeout:      cfg.DialTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		NotifyTimeout:    cfg.NotifyTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

// New validates cfg and builds a console.
func New(cfg config.Client, logger *zerolog.Logger, in io.Reader, out io.Writer) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	notifyWait := cfg.NotifyTimeout
	if notifyWait <= 0 {
		notifyWait = defaultNotifyWait
	}

	host := session.NewHost(session.Deps{
		Config: SessionConfig(cfg),
		Logger: logger,
	})
	return &Console{
		host:          host,
		notifyTimeout: notifyWait,
		log:           logger,
		in:            in,
		out:           out,
	}, nil
}

// Run mounts roomID (when set) and processes input until /quit, EOF or ctx
// cancellation. The mounted session is closed before Run returns, and Run
// waits up to the notify timeout for the close notification of every room
// it opened.
func (c *Console) Run(ctx context.Context, roomID string) error {
	if roomID != "" {
		c.mount(ctx, roomID)
	} else {
		c.printf("* no room selected, use %s <id>\n", cmdRoom)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	err := c.loop(ctx, lines)
	c.shutdown()

	if err != nil {
		return err
	}
	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	default:
	}
	return nil
}

func (c *Console) loop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *Console) handleLine(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return false
	case text == cmdQuit:
		return true
	case text == cmdRoom || strings.HasPrefix(text, cmdRoom+" "):
		room := strings.TrimSpace(strings.TrimPrefix(text, cmdRoom))
		if room == "" {
			c.printf("* usage: %s <id>\n", cmdRoom)
			return false
		}
		c.mount(ctx, room)
		return false
	}

	s := c.host.Current()
	if s == nil {
		c.printf("* no room selected, use %s <id>\n", cmdRoom)
		return false
	}
	if err := s.Send(ctx, line); err != nil {
		c.log.Warn().Err(err).Str("room_id", s.RoomID()).Msg("send failed")
		c.printf("* message not sent: %v\n", err)
	}
	return false
}

func (c *Console) mount(ctx context.Context, roomID string) {
	s, err := c.host.Mount(ctx, roomID)
	if err != nil {
		c.printf("* cannot open room %q: %v\n", roomID, err)
		return
	}
	c.printf("* joined room %s\n", roomID)
	c.mounted = append(c.mounted, s)

	c.renderers.Add(1)
	go func() {
		defer c.renderers.Done()
		c.render(s)
	}()
}

// render prints updates until the session closes its update stream.
func (c *Console) render(s *session.Session) {
	for u := range s.Updates() {
		switch u.Kind {
		case session.UpdateHistory:
			if u.Err != nil {
				c.printf("* history unavailable: %v\n", u.Err)
				continue
			}
			c.printf("* %d message(s) in %s\n", len(u.Messages), s.RoomID())
			for _, msg := range u.Messages {
				c.printMessage(msg)
			}
		case session.UpdateMessage:
			c.printMessage(u.Message)
		case session.UpdateConnection:
			c.printf("* connected as %s\n", u.ConnectionID)
		case session.UpdateClosed:
			if u.Err != nil {
				c.printf("* connection lost: %v\n", u.Err)
			} else {
				c.printf("* disconnected from %s\n", s.RoomID())
			}
		}
	}
}

func (c *Console) shutdown() {
	c.host.Unmount()
	c.renderers.Wait()

	deadline := time.NewTimer(c.notifyTimeout)
	defer deadline.Stop()
	for _, s := range c.mounted {
		select {
		case <-s.Notified():
		case <-deadline.C:
			c.log.Warn().Str("room_id", s.RoomID()).Msg("close notification still pending on exit")
			return
		}
	}
}

func (c *Console) printMessage(msg proto.Message) {
	stamp := msg.CreatedAt
	if ts := msg.Time(); !ts.IsZero() {
		stamp = ts.Local().Format(timeFormat)
	}
	c.printf("[%s] %s\n", stamp, msg.Text)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}
