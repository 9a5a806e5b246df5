package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tool for the storefront auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "../config/auth-service.yaml", "Path to the auth-service config file")

	cmd.AddCommand(newIdentitiesCommand(&configPath))
	cmd.AddCommand(newPurgeCommand(&configPath))
	cmd.AddCommand(newEventsCommand(&configPath))
	return cmd
}
