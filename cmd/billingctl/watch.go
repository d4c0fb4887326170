package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fullmeo/aimastery-billing/pkg/messaging"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print billing notifications as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is not configured")
		}
		client, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()

		return watch(cmd.Context(), client, cfg.Redis.Channel, cmd.OutOrStdout())
	},
}

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error)
}

// watch writes one line per message until ctx ends or the subscription closes.
func watch(ctx context.Context, sub subscriber, channel string, w io.Writer) error {
	messages, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", msg.Time.UTC().Format("2006-01-02T15:04:05Z"), msg.Payload); err != nil {
				return err
			}
		}
	}
}
