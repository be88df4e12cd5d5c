// Package digest runs the periodic jobs: a daily activity summary sent
// to the configured chats and housekeeping prunes for the rate limiter
// and the delivery history.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"ghrelay/internal/ratelimit"
	"ghrelay/internal/storage"
	logx "ghrelay/pkg/logx"
)

const (
	digestWindow     = 24 * time.Hour
	historyRetention = 30 * 24 * time.Hour
	jobTimeout       = 2 * time.Minute
)

// DirectSender delivers one message to one chat.
type DirectSender interface {
	SendTo(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// Schedule is a cron expression for the digest; empty disables it.
	Schedule string
	// Chats receive the digest.
	Chats []int64
}

type Service struct {
	cfg     Config
	store   storage.Store
	limiter *ratelimit.Limiter
	sender  DirectSender
	log     logx.Logger
	c       *cron.Cron
}

func New(cfg Config, store storage.Store, limiter *ratelimit.Limiter, sender DirectSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, limiter: limiter, sender: sender, log: log}
}

// Run schedules the jobs and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.c = cron.New()

	if s.cfg.Schedule != "" && s.store != nil {
		if _, err := s.c.AddFunc(s.cfg.Schedule, func() { s.runJob(ctx, "digest", s.sendDigest) }); err != nil {
			return fmt.Errorf("invalid digest schedule %q: %w", s.cfg.Schedule, err)
		}
	}
	if _, err := s.c.AddFunc("@hourly", func() { s.runJob(ctx, "limiter prune", s.pruneLimiter) }); err != nil {
		return err
	}
	if s.store != nil {
		if _, err := s.c.AddFunc("@daily", func() { s.runJob(ctx, "history prune", s.pruneHistory) }); err != nil {
			return err
		}
	}

	s.c.Start()
	<-ctx.Done()
	stopCtx := s.c.Stop()
	// Let running jobs drain briefly.
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, name string, job func(ctx context.Context) error) {
	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	start := time.Now()
	if err := job(jctx); err != nil {
		s.log.Warn("scheduled job failed", logx.String("job", name), logx.Err(err))
		return
	}
	s.log.Debug("scheduled job done", logx.String("job", name), logx.Duration("dur", time.Since(start)))
}

func (s *Service) sendDigest(ctx context.Context) error {
	stats, err := s.store.DeliverySummary(ctx, time.Now().Add(-digestWindow))
	if err != nil {
		return fmt.Errorf("delivery summary: %w", err)
	}
	text := FormatDigest(stats)
	for _, chatID := range s.cfg.Chats {
		if err := s.sender.SendTo(ctx, chatID, text); err != nil {
			s.log.Warn("digest send failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) pruneLimiter(context.Context) error {
	n := s.limiter.Prune(time.Now())
	if n > 0 {
		s.log.Debug("rate limiter pruned", logx.Int("chats", n))
	}
	return nil
}

func (s *Service) pruneHistory(ctx context.Context) error {
	n, err := s.store.PruneDeliveries(ctx, historyRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debug("delivery history pruned", logx.Int64("rows", n))
	}
	return nil
}

// FormatDigest renders the daily summary message.
func FormatDigest(stats storage.DeliveryStats) string {
	var b strings.Builder
	b.WriteString("📬 **Daily Digest**\n\n")
	if stats.Total == 0 {
		b.WriteString("No notifications were delivered in the last 24 hours.")
		return b.String()
	}
	fmt.Fprintf(&b, "📨 **Notifications:** %d delivered", stats.Total)
	if stats.Failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", stats.Failed)
	}
	b.WriteString("\n\n**By event type:**\n")

	events := make([]string, 0, len(stats.ByEvent))
	for event := range stats.ByEvent {
		events = append(events, event)
	}
	sort.Strings(events)
	for _, event := range events {
		fmt.Fprintf(&b, "• %s: %d\n", event, stats.ByEvent[event])
	}
	return b.String()
}
