package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"daw-agent-be/pkg/events"
	pktNats "daw-agent-be/pkg/nats"

	"github.com/spf13/cobra"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect agent events published on NATS",
	}

	var (
		url     string
		subject string
		durable string
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print agent events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sub, err := pktNats.NewSubscriber(url, opts.logger())
			if err != nil {
				return err
			}
			defer sub.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			stopConsume, err := sub.Subscribe(ctx, subject, durable, func(_ context.Context, e events.Event) error {
				return enc.Encode(pktNats.Envelope{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
			})
			if err != nil {
				return err
			}
			defer stopConsume()

			<-ctx.Done()
			return nil
		},
	}
	tail.Flags().StringVar(&url, "nats", "nats://localhost:4222", "NATS server URL")
	tail.Flags().StringVar(&subject, "subject", pktNats.SubjectPrefix+">", "Subject filter")
	tail.Flags().StringVar(&durable, "durable", "", "Durable consumer name (empty for ephemeral)")

	cmd.AddCommand(tail)
	return cmd
}
