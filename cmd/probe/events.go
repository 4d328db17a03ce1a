package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"campus-assistant-be/pkg/events"
	pktNats "campus-assistant-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var eventsType string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail assistant events from NATS until interrupted",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "only show one event type, e.g. QUESTION_ANSWERED")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	sub, err := pktNats.NewSubscriber(cfg.Events.NatsURL)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", cfg.Events.NatsURL, err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subject := pktNats.SubjectPrefix + ">"
	if eventsType != "" {
		subject = pktNats.Subject(eventsType)
	}
	color.Cyan("📡 listening on %s (Ctrl+C to stop)", subject)

	return sub.Subscribe(ctx, subject, "", func(_ context.Context, evt events.Event) error {
		payload, _ := json.Marshal(evt.Payload())
		fmt.Printf("%s %s %s\n",
			color.HiBlackString(evt.Timestamp().Format("15:04:05")),
			color.YellowString(evt.EventType()),
			payload,
		)
		return nil
	})
}
