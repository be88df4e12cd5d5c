package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ghrelay/internal/config"
	"ghrelay/internal/eventbus"
	"ghrelay/internal/github"
	logx "ghrelay/pkg/logx"
)

type fakeGitHub struct {
	github.Service
	quota *github.RateQuota
	err   error
}

func (f *fakeGitHub) RateLimit(context.Context) (*github.RateQuota, error) {
	return f.quota, f.err
}

func testServer(gh github.Service) (*Server, *Stats, eventbus.Bus) {
	bus := eventbus.New()
	stats := NewStats(bus)
	tun := config.NewManager("", config.Tunables{
		RateLimit: config.RateLimitConfig{Requests: 10, Window: 60 * time.Second},
		Notify:    config.NotifyFlags{Push: true, Releases: true},
	}, logx.Nop())
	srv := NewServer(
		ServerConfig{},
		Info{GitHubUsername: "octocat", AllowedChats: 2, WebhookAddr: "0.0.0.0:8000"},
		stats, tun, gh, nil, nil, logx.Nop(),
	)
	return srv, stats, bus
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(nil)
	rec := get(t, srv.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected payload: %v", body)
	}
}

func TestAPIStatusReflectsCounters(t *testing.T) {
	gh := &fakeGitHub{quota: &github.RateQuota{Limit: 5000, Remaining: 4990, ResetAt: time.Now().Add(time.Hour)}}
	srv, stats, _ := testServer(gh)

	stats.apply(eventbus.Event{Type: eventbus.TypeWebhookReceived, Time: time.Now()})
	stats.apply(eventbus.Event{Type: eventbus.TypeWebhookReceived, Time: time.Now()})
	stats.apply(eventbus.Event{
		Type: eventbus.TypeNotificationSent,
		Data: eventbus.NotificationData{Chats: 3, Failed: 1},
	})

	rec := get(t, srv.Handler(), "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Stats     Snapshot       `json:"stats"`
		GitHubAPI map[string]any `json:"github_api"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Stats.WebhooksReceived != 2 {
		t.Fatalf("webhooks_received = %d, want 2", body.Stats.WebhooksReceived)
	}
	if body.Stats.NotificationsSent != 2 || body.Stats.NotifyFailures != 1 {
		t.Fatalf("notification counters wrong: %+v", body.Stats)
	}
	if body.GitHubAPI["connected"] != true {
		t.Fatalf("github_api not connected: %v", body.GitHubAPI)
	}
}

func TestAPIStatusGitHubDown(t *testing.T) {
	srv, _, _ := testServer(&fakeGitHub{err: github.ErrUnavailable})
	rec := get(t, srv.Handler(), "/api/status")
	var body struct {
		GitHubAPI map[string]any `json:"github_api"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.GitHubAPI["connected"] != false {
		t.Fatalf("github_api should be disconnected: %v", body.GitHubAPI)
	}
}

func TestAPIConfigIsSanitized(t *testing.T) {
	srv, _, _ := testServer(nil)
	rec := get(t, srv.Handler(), "/api/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "octocat") || !strings.Contains(out, `"requests":10`) {
		t.Fatalf("unexpected config payload: %s", out)
	}
	for _, secret := range []string{"token", "secret"} {
		if strings.Contains(strings.ToLower(out), secret) {
			t.Fatalf("config payload leaks %q: %s", secret, out)
		}
	}
}

func TestStatusPageRenders(t *testing.T) {
	srv, stats, _ := testServer(nil)
	stats.apply(eventbus.Event{
		Type: eventbus.TypeTelegramStatus,
		Data: eventbus.TelegramStatusData{Connected: true},
	})
	for _, path := range []string{"/", "/status", "/telegram-status"} {
		rec := get(t, srv.Handler(), path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("%s: content type %q", path, ct)
		}
	}
	rec := get(t, srv.Handler(), "/telegram-status")
	if !strings.Contains(rec.Body.String(), "connected") {
		t.Fatalf("telegram page missing connection state: %s", rec.Body.String())
	}
}

func TestStatsRunConsumesBusEvents(t *testing.T) {
	bus := eventbus.New()
	stats := NewStats(bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = stats.Run(ctx)
		close(done)
	}()

	bus.Publish(eventbus.Event{Type: eventbus.TypeWebhookReceived})
	deadline := time.After(2 * time.Second)
	for stats.Snapshot().WebhooksReceived == 0 {
		select {
		case <-deadline:
			t.Fatal("stats never observed the bus event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stats loop did not stop on cancel")
	}
}
