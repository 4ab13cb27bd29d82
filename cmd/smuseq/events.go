package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/smuseq/pkg/events"
)

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Follow program runs as they start and finish",
		GroupID: gInspection,
		Long: `Follow the daemon's run events until interrupted. Runs fired by a
schedule are tagged with the schedule name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				switch ev.Name {
				case events.RunStarted:
					s, err := events.DecodeAs[events.RunStartedEvent](ev)
					if err != nil {
						logrus.WithError(err).Warn("failed to decode event")
						continue
					}
					by := ""
					if s.Schedule != "" {
						by = " (schedule " + s.Schedule + ")"
					}
					cmd.Printf("%s %s %s started on %v%s\n", stamp(s.Ts), bold("%s", shortID(s.ID)), s.Kind, s.Channels, by)
				case events.RunFinished:
					s, err := events.DecodeAs[events.RunFinishedEvent](ev)
					if err != nil {
						logrus.WithError(err).Warn("failed to decode event")
						continue
					}
					cmd.Printf("%s %s %s finished: %s %s\n", stamp(s.Ts), bold("%s", shortID(s.ID)), s.Kind, s.Code, s.Message)
				default:
					logrus.WithField("event", ev.Name).Debug("ignoring unknown event")
				}
			}
			return nil
		},
	}
}

func stamp(ts int64) string {
	return time.Unix(ts, 0).Format(time.TimeOnly)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
