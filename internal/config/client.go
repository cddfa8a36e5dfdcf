package config

import (
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds chat client configuration.
type ClientConfig struct {
	ServerURL         string
	Token             string
	Character         string
	RequestTimeout    time.Duration
	ReconnectBackoff  time.Duration
	MaxReconnects     int
	HandshakeTimeout  time.Duration
	HealthGRPCAddress string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:         getEnv("CHAT_SERVER_URL", "ws://localhost:8080/ws/chat"),
		Token:             getEnv("CHAT_TOKEN", ""),
		Character:         getEnv("CHAT_CHARACTER", "DEFAULT"),
		RequestTimeout:    getEnvDuration("CHAT_REQUEST_TIMEOUT", 15*time.Second),
		ReconnectBackoff:  getEnvDuration("CHAT_RECONNECT_BACKOFF", time.Second),
		MaxReconnects:     getEnvInt("CHAT_MAX_RECONNECTS", 0),
		HandshakeTimeout:  getEnvDuration("CHAT_HANDSHAKE_TIMEOUT", 10*time.Second),
		HealthGRPCAddress: getEnv("CHAT_HEALTH_ADDR", "localhost:9090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks client configuration.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("CHAT_SERVER_URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("CHAT_SERVER_URL scheme %q is not supported", u.Scheme)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("CHAT_REQUEST_TIMEOUT must be > 0")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("CHAT_RECONNECT_BACKOFF must be > 0")
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("CHAT_MAX_RECONNECTS must be >= 0")
	}
	return nil
}
