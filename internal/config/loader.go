package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WIRECHAT_CONFIG_DEFAULT_PATH"
	envPrefix            = "WIRECHAT"

	clientConfigName = "wirechat-room.yaml"
	serverConfigName = "wirechat-devserver.yaml"
)

// LoadClient builds client configuration and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func LoadClient(logger *zerolog.Logger, explicitPath string) (Client, string, error) {
	cfg := DefaultClient()
	path, err := load(logger, explicitPath, clientConfigName, cfg, map[string]any{
		"api_base":          cfg.APIBase,
		"ws_base":           cfg.WSBase,
		"log_level":         cfg.LogLevel,
		"dedupe_messages":   cfg.DedupeMessages,
		"dial_timeout":      cfg.DialTimeout,
		"write_timeout":     cfg.WriteTimeout,
		"notify_timeout":    cfg.NotifyTimeout,
		"handshake_timeout": cfg.HandshakeTimeout,
	}, &cfg)
	return cfg, path, err
}

// LoadServer builds devserver configuration and returns the resolved path.
func LoadServer(logger *zerolog.Logger, explicitPath string) (Server, string, error) {
	cfg := DefaultServer()
	path, err := load(logger, explicitPath, serverConfigName, cfg, map[string]any{
		"addr":                cfg.Addr,
		"database_path":       cfg.DatabasePath,
		"log_level":           cfg.LogLevel,
		"history_limit":       cfg.HistoryLimit,
		"read_header_timeout": cfg.ReadHeaderTimeout,
		"shutdown_timeout":    cfg.ShutdownTimeout,
	}, &cfg)
	return cfg, path, err
}

func load(logger *zerolog.Logger, explicitPath, defaultName string, defaultCfg any, defaults map[string]any, out any) (string, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath, defaultName)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, defaultCfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return configPath, nil
}

func resolveConfigPath(explicitPath, defaultName string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultName
	}
	return filepath.Join(cwd, defaultName)
}

func writeDefaultConfig(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
