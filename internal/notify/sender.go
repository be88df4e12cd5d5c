// Package notify fans webhook and digest messages out to Telegram
// chats. Delivery is best-effort: failures are logged and counted but
// never propagate back to the producer.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ghrelay/internal/eventbus"
	"ghrelay/internal/storage"
	kit "ghrelay/internal/transport"
	logx "ghrelay/pkg/logx"
)

const historyMax = 50

type Config struct {
	// Chats always receive every notification (the whitelist).
	Chats       []int64
	RatePerSec  int
	SendTimeout time.Duration
	RetryMax    int
	RetryDelay  time.Duration
}

func (c *Config) withDefaults() {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25 // Telegram bot API broadcast ceiling
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Repo   string    `json:"repo,omitempty"`
	Chats  int       `json:"chats"`
	Failed int       `json:"failed"`
}

// Sender broadcasts to the configured chats plus any repo subscribers.
type Sender struct {
	cfg     Config
	adapter kit.Adapter
	store   storage.Store
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	history  []HistoryItem
	lastErr  string
	lastSend time.Time
}

func NewSender(cfg Config, adapter kit.Adapter, store storage.Store, bus eventbus.Bus, log logx.Logger) *Sender {
	cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Broadcast sends text to every target chat. It returns when all sends
// have been attempted or ctx expires; either way the outcome is logged
// and recorded, not returned.
func (s *Sender) Broadcast(ctx context.Context, event, repo, text string) {
	targets := s.targets(ctx, repo)
	if len(targets) == 0 {
		s.log.Debug("notification with no targets",
			logx.String("event", event),
			logx.String("repo", repo))
		return
	}

	failed := 0
	for _, chatID := range targets {
		if err := s.sendOne(ctx, chatID, text); err != nil {
			failed++
			s.log.Warn("notification send failed",
				logx.Int64("chat_id", chatID),
				logx.String("event", event),
				logx.Err(err))
		}
	}

	s.record(event, repo, len(targets), failed)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeNotificationSent,
		Data: eventbus.NotificationData{Chats: len(targets), Failed: failed},
	})
	if s.store != nil {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.store.RecordDelivery(rctx, storage.Delivery{
			Event: event, Repo: repo, Chats: len(targets), Failed: failed,
		}); err != nil {
			s.log.Warn("delivery history write failed", logx.Err(err))
		}
		cancel()
	}

	s.log.Info("notification delivered",
		logx.String("event", event),
		logx.String("repo", repo),
		logx.Int("chats", len(targets)),
		logx.Int("failed", failed))
}

// SendTo delivers text to a single chat, with the same throttling and
// retry policy as a broadcast. Used by the digest job.
func (s *Sender) SendTo(ctx context.Context, chatID int64, text string) error {
	err := s.sendOne(ctx, chatID, text)
	if err != nil {
		s.log.Warn("direct send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	return err
}

func (s *Sender) sendOne(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		_, err := s.adapter.SendText(sendCtx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
			ParseMode:      "Markdown",
			DisablePreview: true,
		})
		cancel()
		if err == nil {
			s.noteResult("")
			return nil
		}
		lastErr = err
	}
	s.noteResult(lastErr.Error())
	return lastErr
}

// targets unions the configured chats with the repo's subscribers,
// deduplicated, configured chats first.
func (s *Sender) targets(ctx context.Context, repo string) []int64 {
	out := make([]int64, 0, len(s.cfg.Chats))
	seen := make(map[int64]struct{}, len(s.cfg.Chats))
	for _, id := range s.cfg.Chats {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if s.store == nil || repo == "" {
		return out
	}
	subs, err := s.store.SubscribersFor(ctx, repo)
	if err != nil {
		s.log.Warn("subscriber lookup failed", logx.String("repo", repo), logx.Err(err))
		return out
	}
	for _, id := range subs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Sender) record(event, repo string, chats, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryItem{
		At: time.Now(), Event: event, Repo: repo, Chats: chats, Failed: failed,
	})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
}

func (s *Sender) noteResult(errText string) {
	s.mu.Lock()
	s.lastErr = errText
	s.lastSend = time.Now()
	s.mu.Unlock()
}

// History returns recent broadcasts, newest last.
func (s *Sender) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// LastResult reports the most recent send attempt for the dashboard's
// transport health view. ok is false until a send has been attempted.
func (s *Sender) LastResult() (at time.Time, errText string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSend, s.lastErr, !s.lastSend.IsZero()
}
