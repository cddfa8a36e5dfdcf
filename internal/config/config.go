// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Port             string
	HealthGRPCPort   string
	FrontendURL      string
	DBPath           string
	JWTSecret        string
	DefaultCharacter string
	Characters       CharactersConfig
	Backend          BackendConfig
	SessionMaxTurns  int
	TranscriptTTL    time.Duration
	CORS             CORSConfig
}

// CORSConfig shapes the CORS headers of the REST API. Origins are derived
// from FRONTEND_URL by AllowedOrigins.
type CORSConfig struct {
	AllowedHeaders []string
	MaxAge         time.Duration
}

// CharactersConfig controls where persona prompts come from.
type CharactersConfig struct {
	File  string // optional YAML catalog, seeded into the store
	Watch bool   // reload File on change
}

// BackendConfig selects and configures the text-generation provider.
type BackendConfig struct {
	Provider  string // "openai", "anthropic" or "gemini"
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("BACKEND_PROVIDER", "openai"))

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		HealthGRPCPort:   getEnv("HEALTH_GRPC_PORT", ""),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/relay.db"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		DefaultCharacter: getEnv("DEFAULT_CHARACTER", "DEFAULT"),
		Characters: CharactersConfig{
			File:  getEnv("CHARACTERS_FILE", ""),
			Watch: getEnvBool("CHARACTERS_WATCH", false),
		},
		Backend: BackendConfig{
			Provider:  provider,
			Model:     getEnv("BACKEND_MODEL", defaultModel(provider)),
			APIKey:    getEnv("BACKEND_API_KEY", providerAPIKey(provider)),
			BaseURL:   getEnv("BACKEND_BASE_URL", ""),
			Timeout:   getEnvDuration("BACKEND_TIMEOUT", 60*time.Second),
			MaxTokens: getEnvInt("BACKEND_MAX_TOKENS", 1024),
		},
		SessionMaxTurns: getEnvInt("SESSION_MAX_TURNS", 0),
		TranscriptTTL:   getEnvDuration("TRANSCRIPT_TTL", 30*24*time.Hour),
		CORS: CORSConfig{
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
			MaxAge:         getEnvDuration("CORS_MAX_AGE", 10*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	switch c.Backend.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("BACKEND_PROVIDER %q is not supported", c.Backend.Provider)
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("BACKEND_API_KEY cannot be empty for provider %s", c.Backend.Provider)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.SessionMaxTurns < 0 {
		return fmt.Errorf("SESSION_MAX_TURNS must be >= 0")
	}
	if c.TranscriptTTL <= 0 {
		return fmt.Errorf("TRANSCRIPT_TTL must be > 0")
	}
	if c.CORS.MaxAge < 0 {
		return fmt.Errorf("CORS_MAX_AGE must be >= 0")
	}
	return nil
}

// AllowedOrigins returns the origins the REST API accepts: any in
// development, otherwise only FRONTEND_URL.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "gemini":
		return "gemini-2.0-flash"
	default:
		return "gpt-4o-mini"
	}
}

func providerAPIKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("15s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
