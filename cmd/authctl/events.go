package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/repository/kafka"
)

func newEventsCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published session events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newEventsTailCommand(configPath))
	return cmd
}

func newEventsTailCommand(configPath *string) *cobra.Command {
	var (
		group         string
		fromBeginning bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print session events from the kafka topic until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Events.Driver != "kafka" {
				return fmt.Errorf("events tail reads kafka, events.driver is %q", cfg.Events.Driver)
			}

			c := kafka.NewConsumer(&kafka.ConsumerConfig{
				Brokers:       cfg.Events.Kafka.Brokers,
				GroupID:       group,
				Topic:         cfg.Events.Kafka.Topic,
				FromBeginning: fromBeginning,
				Logger:        log,
			})
			defer func() { _ = c.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			err = c.Consume(cmd.Context(), kafka.SessionEventHandler(func(_ context.Context, e events.SessionEvent) error {
				return enc.Encode(e)
			}))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&group, "group", "authctl-tail", "Consumer group id")
	cmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "Start at the oldest retained offset")
	return cmd
}
