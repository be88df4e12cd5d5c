// Package dashboard serves the read-only status web UI: health and
// status pages, JSON endpoints and a websocket feed of relay activity.
package dashboard

import (
	"context"
	"sync"
	"time"

	"ghrelay/internal/eventbus"
)

// Snapshot is the point-in-time view rendered by the status endpoints.
type Snapshot struct {
	StartedAt         time.Time  `json:"started_at"`
	Uptime            string     `json:"uptime"`
	WebhooksReceived  uint64     `json:"webhooks_received"`
	WebhooksRejected  uint64     `json:"webhooks_rejected"`
	CommandsHandled   uint64     `json:"commands_handled"`
	CommandErrors     uint64     `json:"command_errors"`
	NotificationsSent uint64     `json:"notifications_sent"`
	NotifyFailures    uint64     `json:"notify_failures"`
	LastWebhookAt     *time.Time `json:"last_webhook_at,omitempty"`
	LastCommandAt     *time.Time `json:"last_command_at,omitempty"`
	TelegramConnected bool       `json:"telegram_connected"`
	TelegramDetail    string     `json:"telegram_detail,omitempty"`
}

// Stats aggregates bus events into counters for the dashboard.
type Stats struct {
	bus eventbus.Bus

	mu                sync.Mutex
	startedAt         time.Time
	webhooksReceived  uint64
	webhooksRejected  uint64
	commandsHandled   uint64
	commandErrors     uint64
	notificationsSent uint64
	notifyFailures    uint64
	lastWebhookAt     time.Time
	lastCommandAt     time.Time
	telegramConnected bool
	telegramDetail    string
}

func NewStats(bus eventbus.Bus) *Stats {
	return &Stats{bus: bus, startedAt: time.Now()}
}

// Run consumes bus events until ctx is canceled.
func (s *Stats) Run(ctx context.Context) error {
	events, unsub := s.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			s.apply(e)
		}
	}
}

func (s *Stats) apply(e eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Type {
	case eventbus.TypeWebhookReceived:
		s.webhooksReceived++
		s.lastWebhookAt = e.Time
	case eventbus.TypeWebhookRejected:
		s.webhooksRejected++
	case eventbus.TypeCommandHandled:
		s.commandsHandled++
		s.lastCommandAt = e.Time
		if d, ok := e.Data.(eventbus.CommandData); ok && d.Outcome == "error" {
			s.commandErrors++
		}
	case eventbus.TypeNotificationSent:
		if d, ok := e.Data.(eventbus.NotificationData); ok {
			s.notificationsSent += uint64(d.Chats - d.Failed)
			s.notifyFailures += uint64(d.Failed)
		}
	case eventbus.TypeTelegramStatus:
		if d, ok := e.Data.(eventbus.TelegramStatusData); ok {
			s.telegramConnected = d.Connected
			s.telegramDetail = d.Detail
		}
	}
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		StartedAt:         s.startedAt,
		Uptime:            time.Since(s.startedAt).Round(time.Second).String(),
		WebhooksReceived:  s.webhooksReceived,
		WebhooksRejected:  s.webhooksRejected,
		CommandsHandled:   s.commandsHandled,
		CommandErrors:     s.commandErrors,
		NotificationsSent: s.notificationsSent,
		NotifyFailures:    s.notifyFailures,
		TelegramConnected: s.telegramConnected,
		TelegramDetail:    s.telegramDetail,
	}
	if !s.lastWebhookAt.IsZero() {
		t := s.lastWebhookAt
		snap.LastWebhookAt = &t
	}
	if !s.lastCommandAt.IsZero() {
		t := s.lastCommandAt
		snap.LastCommandAt = &t
	}
	return snap
}
