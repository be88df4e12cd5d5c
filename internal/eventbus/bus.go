// Package eventbus is the in-memory fanout that feeds the dashboard:
// the webhook receiver, command dispatcher and notification sender
// publish small activity records, the dashboard subscribes.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the relay.
const (
	TypeWebhookReceived  = "webhook.received"
	TypeWebhookRejected  = "webhook.rejected"
	TypeCommandHandled   = "command.handled"
	TypeNotificationSent = "notification.sent"
	TypeTelegramStatus   = "telegram.status"
)

// WebhookData describes one processed webhook delivery.
type WebhookData struct {
	Event    string `json:"event"`
	Repo     string `json:"repo,omitempty"`
	Notified bool   `json:"notified"`
	Reason   string `json:"reason,omitempty"`
}

// CommandData describes one dispatched bot command.
type CommandData struct {
	ChatID  int64  `json:"chat_id"`
	Command string `json:"command"`
	Outcome string `json:"outcome"`
}

// NotificationData describes one outbound notification fanout.
type NotificationData struct {
	Chats  int `json:"chats"`
	Failed int `json:"failed"`
}

// TelegramStatusData describes transport health transitions.
type TelegramStatusData struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
}

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be one of the *Data types above so the dashboard can
// serialize it to JSON for the live feed.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
