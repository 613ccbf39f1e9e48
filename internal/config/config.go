package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Client holds configuration for the room client.
type Client struct {
	APIBase          string        `mapstructure:"api_base" yaml:"api_base"`
	WSBase           string        `mapstructure:"ws_base" yaml:"ws_base"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	DedupeMessages   bool          `mapstructure:"dedupe_messages" yaml:"dedupe_messages"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout" yaml:"notify_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// DefaultClient returns client configuration pointing at a local devserver.
func DefaultClient() Client {
	return Client{
		APIBase:       "http://localhost:8080",
		WSBase:        "ws://localhost:8080/ws",
		LogLevel:      "info",
		DialTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		NotifyTimeout: 5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// DedupeMessages is only ever switched on.
func (c *Client) UpdateFrom(other Client) {
	if other.APIBase != "" {
		c.APIBase = other.APIBase
	}
	if other.WSBase != "" {
		c.WSBase = other.WSBase
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DedupeMessages {
		c.DedupeMessages = true
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.NotifyTimeout != 0 {
		c.NotifyTimeout = other.NotifyTimeout
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
}

// Validate checks that both endpoints are usable absolute URLs.
func (c Client) Validate() error {
	if err := checkURL("api_base", c.APIBase, "http", "https"); err != nil {
		return err
	}
	return checkURL("ws_base", c.WSBase, "ws", "wss", "http", "https")
}

// Server holds configuration for the development backend.
type Server struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultServer returns configuration with reasonable starter defaults.
func DefaultServer() Server {
	return Server{
		Addr:              ":8080",
		DatabasePath:      "wirechat-dev.db",
		LogLevel:          "info",
		HistoryLimit:      100,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Server) UpdateFrom(other Server) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

func checkURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s: %w", key, errors.New("must be set"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is not an absolute %v url", key, raw, schemes)
}
