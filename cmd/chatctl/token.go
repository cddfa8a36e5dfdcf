package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ashureev/persona-relay/internal/healthsrv"
	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/spf13/cobra"
)

var (
	tokenTTL      time.Duration
	healthAddr    string
	healthService string
)

var tokenCmd = &cobra.Command{
	Use:   "token <principal>",
	Short: "Mint a development credential signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
		signed, err := identity.Issue(secret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server's gRPC health service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := healthAddr
		if addr == "" {
			cfg, err := loadClientConfig()
			if err != nil {
				return err
			}
			addr = cfg.HealthGRPCAddress
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		status, err := healthsrv.Probe(ctx, addr, healthService)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", identity.DefaultTokenTTL, "credential lifetime")
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "health service address (overrides CHAT_HEALTH_ADDR)")
	healthCmd.Flags().StringVar(&healthService, "service", healthsrv.Service, "service name to check")
}
