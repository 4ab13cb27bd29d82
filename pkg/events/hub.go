package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// further events are dropped for it.
const subscriberBuffer = 64

// EventHub fans run events out to every open event stream. A slow
// subscriber loses events rather than stalling the program that published
// them.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

// Subscribe returns a channel that receives every published event until
// Unsubscribe or Close. After Close it returns an already closed channel.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers reports how many event streams are open.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every open stream. Later publishes are discarded.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.closed = true
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}

	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to encode event")
		return
	}
	msg := Event{Name: name, Data: b}
	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"event":   name,
			"dropped": dropped,
		}).Warn("event streams are falling behind, dropping event")
	}
}
