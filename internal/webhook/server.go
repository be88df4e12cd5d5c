package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ghrelay/internal/eventbus"
	logx "ghrelay/pkg/logx"
)

const maxBodyBytes = 1 << 20

// Notifier fans a notification text out to the configured chats plus
// any chats subscribed to the repository.
type Notifier interface {
	Broadcast(ctx context.Context, event, repo, text string)
}

type ServerConfig struct {
	Addr          string
	Secret        string
	AllowUnsigned bool
}

// Server is the GitHub-facing HTTP listener.
type Server struct {
	cfg       ServerConfig
	formatter *Formatter
	notifier  Notifier
	bus       eventbus.Bus
	log       logx.Logger

	unsignedWarn sync.Once
}

func NewServer(cfg ServerConfig, f *Formatter, n Notifier, bus eventbus.Bus, log logx.Logger) *Server {
	return &Server{cfg: cfg, formatter: f, notifier: n, bus: bus, log: log}
}

// Handler builds the router. Exposed separately so tests can drive it
// with httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Post("/webhook", s.handleDelivery)
	r.Get("/health", s.handleHealth)
	return r
}

// Run serves until ctx is canceled, then drains with a bounded grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("webhook listener started", logx.String("addr", s.cfg.Addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")

	if !s.authorized(body, r.Header.Get("X-Hub-Signature-256")) {
		s.log.Warn("webhook signature rejected",
			logx.String("event", event),
			logx.String("delivery", delivery))
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeWebhookRejected,
			Data: eventbus.WebhookData{Event: event, Reason: "bad signature"},
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	text, err := s.formatter.Format(event, body)
	if err != nil {
		s.log.Warn("webhook payload rejected",
			logx.String("event", event),
			logx.String("delivery", delivery),
			logx.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	repo := repoFromBody(body)
	if text == "" {
		s.log.Debug("webhook ignored",
			logx.String("event", event),
			logx.String("delivery", delivery),
			logx.String("repo", repo))
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeWebhookReceived,
			Data: eventbus.WebhookData{Event: event, Repo: repo, Notified: false},
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	s.log.Info("webhook accepted",
		logx.String("event", event),
		logx.String("delivery", delivery),
		logx.String("repo", repo),
		logx.Int("bytes", len(body)))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeWebhookReceived,
		Data: eventbus.WebhookData{Event: event, Repo: repo, Notified: true},
	})

	// Delivery outcome is never surfaced to GitHub; the sender logs its
	// own failures. Detached from the request context so a fast 200 does
	// not cancel the fanout.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.notifier.Broadcast(ctx, event, repo, text)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) authorized(body []byte, header string) bool {
	if s.cfg.Secret == "" {
		if !s.cfg.AllowUnsigned {
			return false
		}
		s.unsignedWarn.Do(func() {
			s.log.Warn("webhook secret not configured, accepting unsigned deliveries")
		})
		return true
	}
	return VerifySignature(body, header, []byte(s.cfg.Secret))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "webhook"})
}

func repoFromBody(body []byte) string {
	var p struct {
		Repository repoRef `json:"repository"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	return p.Repository.FullName
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
