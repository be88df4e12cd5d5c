// Package app assembles the relay: configuration, logging, the
// Telegram transport, the GitHub client, the webhook receiver, the
// dashboard and the notification pipeline, all run under one
// supervisor with cooperative shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ghrelay/internal/bot"
	"ghrelay/internal/config"
	"ghrelay/internal/dashboard"
	"ghrelay/internal/digest"
	"ghrelay/internal/eventbus"
	"ghrelay/internal/github"
	"ghrelay/internal/notify"
	"ghrelay/internal/ratelimit"
	"ghrelay/internal/storage"
	kit "ghrelay/internal/transport"
	telegram "ghrelay/internal/transport/telegram"
	"ghrelay/internal/webhook"
	logx "ghrelay/pkg/logx"
)

type App struct {
	cfg      *config.Config
	tunables *config.Manager

	sup *Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter *telegram.Adapter
	limiter *ratelimit.Limiter

	sender     *notify.Sender
	dispatcher *bot.Dispatcher
	hooks      *webhook.Server
	stats      *dashboard.Stats
	dash       *dashboard.Server
	digest     *digest.Service

	updates chan kit.Update
}

func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The adapter doubles as the WARN+ log sink, so it exists before
	// the log service and gets a plain console logger to start with.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: true,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Telegram.OpsChatID != 0,
			ChatID:     cfg.Telegram.OpsChatID,
			MinLevel:   "warn",
			RatePerSec: 1,
		},
	}, adapter)
	log = log.With(logx.String("comp", "app"))

	tunables := config.NewManager(cfg.TunablesFile, cfg.Tunables, logSvc.Logger().With(logx.String("comp", "config")))
	if err := tunables.Load(); err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("tunables: %w", err)
	}

	bus := eventbus.New()

	store, err := storage.Open(storage.Config{
		Path:        cfg.StoragePath,
		BusyTimeout: 5 * time.Second,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		log.Info("storage enabled", logx.String("path", cfg.StoragePath))
	}

	gh := github.NewClient(github.Options{Token: cfg.GitHub.Token},
		logSvc.Logger().With(logx.String("comp", "github")))

	rl := tunables.Get().RateLimit
	limiter := ratelimit.New(rl.Requests, rl.Window)

	sender := notify.NewSender(notify.Config{Chats: cfg.Whitelist},
		adapter, store, bus, logSvc.Logger().With(logx.String("comp", "notify")))

	formatter := &webhook.Formatter{
		Flags: func() config.NotifyFlags { return tunables.Get().Notify },
	}
	hooks := webhook.NewServer(webhook.ServerConfig{
		Addr:          cfg.Webhook.Addr(),
		Secret:        cfg.GitHub.WebhookSecret,
		AllowUnsigned: cfg.GitHub.AllowUnsigned,
	}, formatter, sender, bus, logSvc.Logger().With(logx.String("comp", "webhook")))

	dispatcher := bot.NewDispatcher(bot.Options{
		Username: cfg.GitHub.Username,
		BotName:  adapter.Username(),
	}, adapter, gh, store, limiter, cfg.Whitelist, tunables, bus,
		logSvc.Logger().With(logx.String("comp", "bot")))

	stats := dashboard.NewStats(bus)
	dash := dashboard.NewServer(dashboard.ServerConfig{Addr: cfg.Web.Addr()},
		dashboard.Info{
			GitHubUsername: cfg.GitHub.Username,
			AllowedChats:   len(cfg.Whitelist),
			WebhookAddr:    cfg.Webhook.Addr(),
		}, stats, tunables, gh, sender, store,
		logSvc.Logger().With(logx.String("comp", "dashboard")))

	dig := digest.New(digest.Config{
		Schedule: cfg.DigestSchedule,
		Chats:    cfg.Whitelist,
	}, store, limiter, sender, logSvc.Logger().With(logx.String("comp", "digest")))

	return &App{
		cfg:        cfg,
		tunables:   tunables,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		adapter:    adapter,
		limiter:    limiter,
		sender:     sender,
		dispatcher: dispatcher,
		hooks:      hooks,
		stats:      stats,
		dash:       dash,
		digest:     dig,
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, a.log, true)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	a.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTelegramStatus,
		Time: time.Now(),
		Data: eventbus.TelegramStatusData{Connected: true},
	})

	// Best-effort: keep Telegram's "/" menu in sync with the command table.
	a.sup.Go("telegram.menu", func(c context.Context) error {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.dispatcher.Commands()); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.dispatcher.Run(c, a.updates)
	})
	a.sup.Go("webhook.server", a.hooks.Run)
	a.sup.Go("dashboard.server", a.dash.Run)
	a.sup.Go("dashboard.stats", a.stats.Run)
	a.sup.Go("digest.cron", a.digest.Run)

	a.sup.GoRestart("tunables.watch", a.tunables.Watch)

	// Apply hot-reloaded tunables to the command rate limiter. The
	// webhook formatter reads the manager directly, so only the limiter
	// needs a push.
	sub := a.tunables.Subscribe(4)
	a.sup.Go("tunables.apply", func(c context.Context) error {
		defer a.tunables.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case t, ok := <-sub:
				if !ok {
					return nil
				}
				a.limiter.SetParams(t.RateLimit.Requests, t.RateLimit.Window)
				a.log.Info("rate limit updated",
					logx.Int("requests", t.RateLimit.Requests),
					logx.Duration("window", t.RateLimit.Window))
			}
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started",
		logx.String("webhook_addr", a.cfg.Webhook.Addr()),
		logx.String("web_addr", a.cfg.Web.Addr()),
		logx.Int("allowed_chats", len(a.cfg.Whitelist)))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.bus.Publish(eventbus.Event{
		Type: eventbus.TypeTelegramStatus,
		Time: time.Now(),
		Data: eventbus.TelegramStatusData{Connected: false, Detail: "shutting down"},
	})

	// Cancel the run context first so the HTTP servers, the cron loop
	// and the dispatcher workers start unwinding immediately.
	a.sup.Cancel()

	// Each shutdown step gets an upper bound so one stuck component
	// cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
