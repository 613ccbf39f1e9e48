package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-room/internal/config"
	"github.com/vovakirdan/wirechat-room/internal/console"
	applog "github.com/vovakirdan/wirechat-room/internal/log"
)

var rootCmd = &cobra.Command{
	Use:          "wirechat-room [room]",
	Short:        "Follow a wirechat room from the terminal",
	Long:         "Loads the room history, joins its live channel and sends every stdin line as a message.\nCommands: /room <id> switches rooms, /quit exits.",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runRoom,
}

var (
	flagConfig   string
	flagAPIBase  string
	flagWSBase   string
	flagLogLevel string
	flagDedupe   bool
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to YAML config (default ./wirechat-room.yaml)")
	flags.StringVar(&flagAPIBase, "api-base", "", "HTTP base URL of the chat API")
	flags.StringVar(&flagWSBase, "ws-base", "", "websocket endpoint URL")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, error or disabled")
	flags.BoolVar(&flagDedupe, "dedupe", false, "drop messages whose id is already shown")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("wirechat-room")
	}
}

func runRoom(cmd *cobra.Command, args []string) error {
	bootLog := applog.New("info")
	cfg, path, err := config.LoadClient(bootLog, flagConfig)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Client{
		APIBase:        flagAPIBase,
		WSBase:         flagWSBase,
		LogLevel:       flagLogLevel,
		DedupeMessages: flagDedupe,
	})

	logger := applog.New(cfg.LogLevel)
	logger.Debug().
		Str("config", path).
		Str("api_base", cfg.APIBase).
		Str("ws_base", cfg.WSBase).
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := console.New(cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var room string
	if len(args) == 1 {
		room = args[0]
	}
	return c.Run(ctx, room)
}
