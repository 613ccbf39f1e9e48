// ws_chat talks to the websocket endpoint directly, printing every frame it
// receives. Useful for checking a backend without the session layer.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-room/internal/proto"
)

var rootCmd = &cobra.Command{
	Use:          "ws_chat",
	Short:        "Raw websocket chat client",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

var (
	flagAddr string
	flagRoom string
)

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "ws://localhost:8080/ws", "websocket endpoint")
	rootCmd.Flags().StringVar(&flagRoom, "room", "general", "room to join")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("ws_chat")
	}
}

func run(_ *cobra.Command, _ []string) error {
	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	u, err := url.Parse(flagAddr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("room_id", flagRoom)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.HandshakeAction()); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	fmt.Printf("Connected to %s in room %s\n", flagAddr, flagRoom)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Error().Err(err).Msg("read error")
			return
		}

		frame, err := proto.DecodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Str("raw", string(data)).Msg("bad frame")
			continue
		}
		switch f := frame.(type) {
		case proto.MessageFrame:
			fmt.Printf("[%s] %s (id=%s)\n", f.Message.CreatedAt, f.Message.Text, f.Message.ID)
		case proto.ConnectionFrame:
			fmt.Printf("connection id: %s\n", f.ConnectionID)
		default:
			fmt.Printf("frame type=%s raw=%s\n", frame.FrameType(), data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := wsjson.Write(ctx, conn, proto.SendMessageAction(flagRoom, text)); err != nil {
				log.Error().Err(err).Msg("send error")
				return
			}
		}
	}
}
