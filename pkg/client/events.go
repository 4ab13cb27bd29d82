package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is cancelled or the daemon
// closes the stream. The returned channel is closed when the stream ends.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 64)

	go func() {
		defer close(out)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
		if err != nil {
			logrus.WithError(err).Error("failed to create event request")
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				logrus.WithError(err).Error("failed to subscribe to events")
			}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.WithField("status", resp.StatusCode).Error("event subscription rejected")
			return
		}

		var ev events.Event
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Name != "" {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				ev = events.Event{}
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
			}
		}
	}()

	return out
}
