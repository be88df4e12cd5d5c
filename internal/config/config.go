package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ghrelay/internal/env"
)

// Config is the process configuration. Everything here is sourced from
// the environment at startup and immutable for the process lifetime;
// the tunables in Tunables may additionally be overridden by an
// optional YAML file (see Manager) and hot-reloaded.
type Config struct {
	Telegram TelegramConfig
	GitHub   GitHubConfig
	Webhook  ListenConfig
	Web      ListenConfig
	Logging  LoggingConfig

	Whitelist Whitelist

	StoragePath    string
	DigestSchedule string // cron spec; empty disables the daily digest

	Debug bool

	// TunablesFile is an optional YAML file with hot-reloadable
	// settings (notification flags, rate limit).
	TunablesFile string

	Tunables Tunables
}

type TelegramConfig struct {
	Token       string
	PollTimeout time.Duration
	OpsChatID   int64 // optional chat for WARN+ log lines
}

type GitHubConfig struct {
	Token         string
	Username      string
	WebhookSecret string
	// AllowUnsigned must be set explicitly to run without a webhook
	// secret. Skipping signature verification is a security hole; the
	// process refuses to start on an empty secret otherwise.
	AllowUnsigned bool
}

type ListenConfig struct {
	Host string
	Port int
}

func (l ListenConfig) Addr() string { return fmt.Sprintf("%s:%d", l.Host, l.Port) }

type LoggingConfig struct {
	Level string
	File  string
}

// Tunables are the settings that may change at runtime via the
// optional overrides file.
type Tunables struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Notify    NotifyFlags     `yaml:"notify"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// NotifyFlags gate which GitHub event types produce notifications.
type NotifyFlags struct {
	Push         bool `yaml:"push"`
	Issues       bool `yaml:"issues"`
	PullRequests bool `yaml:"pull_requests"`
	Releases     bool `yaml:"releases"`
}

// Whitelist is the set of chat IDs allowed to issue commands.
// An empty whitelist allows everyone.
type Whitelist []int64

func (w Whitelist) Allows(chatID int64) bool {
	if len(w) == 0 {
		return true
	}
	for _, id := range w {
		if id == chatID {
			return true
		}
	}
	return false
}

// FromEnv builds the configuration from environment variables.
// Variable names follow the deployment's .env convention.
func FromEnv() (*Config, error) {
	whitelist, ok := env.GetInt64List("ALLOWED_CHAT_IDS")
	if !ok {
		return nil, errors.New("ALLOWED_CHAT_IDS: invalid chat id list")
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:       env.GetString("TELEGRAM_BOT_TOKEN", ""),
			PollTimeout: time.Duration(env.GetInt("TELEGRAM_POLL_TIMEOUT", 10)) * time.Second,
			OpsChatID:   int64(env.GetInt("TELEGRAM_OPS_CHAT_ID", 0)),
		},
		GitHub: GitHubConfig{
			Token:         env.GetString("GITHUB_TOKEN", ""),
			Username:      env.GetString("GITHUB_USERNAME", ""),
			WebhookSecret: env.GetString("GITHUB_WEBHOOK_SECRET", ""),
			AllowUnsigned: env.GetBool("ALLOW_UNSIGNED_WEBHOOKS", false),
		},
		Webhook: ListenConfig{
			Host: env.GetString("WEBHOOK_HOST", "0.0.0.0"),
			Port: env.GetInt("WEBHOOK_PORT", 8000),
		},
		Web: ListenConfig{
			Host: env.GetString("WEB_HOST", "0.0.0.0"),
			Port: env.GetInt("WEB_PORT", 5000),
		},
		Logging: LoggingConfig{
			Level: env.GetString("LOG_LEVEL", "info"),
			File:  env.GetString("LOG_FILE", ""),
		},
		Whitelist:      Whitelist(whitelist),
		StoragePath:    env.GetString("STORAGE_PATH", "./ghrelay.db"),
		DigestSchedule: env.GetString("DIGEST_SCHEDULE", ""),
		Debug:          env.GetBool("DEBUG_MODE", false),
		TunablesFile:   env.GetString("CONFIG_FILE", ""),
		Tunables: Tunables{
			RateLimit: RateLimitConfig{
				Requests: env.GetInt("RATE_LIMIT_REQUESTS", 10),
				Window:   time.Duration(env.GetInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
			},
			Notify: NotifyFlags{
				Push:         env.GetBool("NOTIFY_ON_PUSH", true),
				Issues:       env.GetBool("NOTIFY_ON_ISSUES", true),
				PullRequests: env.GetBool("NOTIFY_ON_PULL_REQUESTS", true),
				Releases:     env.GetBool("NOTIFY_ON_RELEASES", true),
			},
		},
	}
	if cfg.Debug && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the process must not start with.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.GitHub.Token) == "" {
		errs = append(errs, "GITHUB_TOKEN is required")
	}
	if strings.TrimSpace(c.GitHub.Username) == "" {
		errs = append(errs, "GITHUB_USERNAME is required")
	}
	if strings.TrimSpace(c.GitHub.WebhookSecret) == "" && !c.GitHub.AllowUnsigned {
		errs = append(errs, "GITHUB_WEBHOOK_SECRET is required (set ALLOW_UNSIGNED_WEBHOOKS=true to explicitly run without signature verification)")
	}
	if err := c.Tunables.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		errs = append(errs, "WEBHOOK_PORT is out of range")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, "WEB_PORT is out of range")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (t Tunables) Validate() error {
	if t.RateLimit.Requests <= 0 {
		return errors.New("rate limit requests must be > 0")
	}
	if t.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be > 0")
	}
	return nil
}
