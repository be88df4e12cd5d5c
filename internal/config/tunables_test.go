package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "ghrelay/pkg/logx"
)

func baseTunables() Tunables {
	return Tunables{
		RateLimit: RateLimitConfig{Requests: 10, Window: 60 * time.Second},
		Notify:    NotifyFlags{Push: true, Issues: true, PullRequests: true, Releases: true},
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunables.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestManagerLoad_OverridesPartial(t *testing.T) {
	path := writeFile(t, `
rate_limit:
  requests: 5
  window: 2m
notify:
  releases: false
`)
	m := NewManager(path, baseTunables(), logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := m.Get()
	if got.RateLimit.Requests != 5 || got.RateLimit.Window != 2*time.Minute {
		t.Fatalf("rate limit not applied: %+v", got.RateLimit)
	}
	if got.Notify.Releases {
		t.Fatalf("releases flag should be off")
	}
	// fields absent from the file keep their env-derived values
	if !got.Notify.Push || !got.Notify.Issues {
		t.Fatalf("untouched flags changed: %+v", got.Notify)
	}
}

func TestManagerLoad_EmptyPathKeepsBase(t *testing.T) {
	m := NewManager("", baseTunables(), logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.Get(); got != baseTunables() {
		t.Fatalf("base changed: %+v", got)
	}
}

func TestManagerLoad_InvalidWindowRejected(t *testing.T) {
	path := writeFile(t, "rate_limit:\n  window: sideways\n")
	m := NewManager(path, baseTunables(), logx.Nop())
	if err := m.Load(); err == nil {
		t.Fatalf("want error for invalid window")
	}
	// rejected file leaves the previous tunables in effect
	if got := m.Get(); got != baseTunables() {
		t.Fatalf("base changed after rejected load: %+v", got)
	}
}

func TestValidate_RejectsMissingSecrets(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		GitHub:   GitHubConfig{Token: "g", Username: "octocat"},
		Webhook:  ListenConfig{Host: "0.0.0.0", Port: 8000},
		Web:      ListenConfig{Host: "0.0.0.0", Port: 5000},
		Tunables: baseTunables(),
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("want error: webhook secret missing without opt-out")
	}
	cfg.GitHub.AllowUnsigned = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unsigned opt-in should validate: %v", err)
	}
}

func TestWhitelistAllows(t *testing.T) {
	if !(Whitelist{}).Allows(42) {
		t.Fatalf("empty whitelist must allow everyone")
	}
	wl := Whitelist{1, 2}
	if !wl.Allows(2) || wl.Allows(3) {
		t.Fatalf("whitelist membership wrong")
	}
}
