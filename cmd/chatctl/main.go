// chatctl is a terminal client for the persona relay.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/persona-relay/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	character string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Talk to persona relay characters from the terminal",
	Long: `chatctl connects to a persona relay server over WebSocket.

Available subcommands:
  chat   - Interactive conversation with a character
  send   - Send a single message and print the reply
  token  - Mint a development credential
  health - Query the gRPC health service`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "WebSocket endpoint (overrides CHAT_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "credential (overrides CHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&character, "character", "c", "", "character ID (overrides CHAT_CHARACTER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection events to stderr")

	rootCmd.AddCommand(chatCmd, sendCmd, tokenCmd, healthCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadClientConfig reads the environment and applies flag overrides.
func loadClientConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if token != "" {
		cfg.Token = token
	}
	if character != "" {
		cfg.Character = character
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
