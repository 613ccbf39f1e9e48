package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-room/internal/app"
	"github.com/vovakirdan/wirechat-room/internal/config"
	applog "github.com/vovakirdan/wirechat-room/internal/log"
)

var rootCmd = &cobra.Command{
	Use:          "wirechat-devserver",
	Short:        "Local chat backend for wirechat-room",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runServer,
}

var (
	flagConfig   string
	flagAddr     string
	flagDB       string
	flagLogLevel string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to YAML config (default ./wirechat-devserver.yaml)")
	flags.StringVar(&flagAddr, "addr", "", "HTTP listen address")
	flags.StringVar(&flagDB, "db", "", "SQLite database path")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, error or disabled")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("wirechat-devserver")
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	bootLog := applog.New("info")
	cfg, path, err := config.LoadServer(bootLog, flagConfig)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Server{
		Addr:         flagAddr,
		DatabasePath: flagDB,
		LogLevel:     flagLogLevel,
	})

	logger := applog.New(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting wirechat devserver")
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
