package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ghrelay/internal/config"
	"ghrelay/internal/github"
	"ghrelay/internal/notify"
	"ghrelay/internal/storage"
	logx "ghrelay/pkg/logx"
)

// TelegramReporter exposes transport delivery state for the
// /telegram-status view.
type TelegramReporter interface {
	LastResult() (at time.Time, errText string, ok bool)
	History() []notify.HistoryItem
}

// Info is the static, sanitized configuration shown by the dashboard.
type Info struct {
	GitHubUsername string `json:"github_username"`
	AllowedChats   int    `json:"allowed_chats_count"`
	WebhookAddr    string `json:"webhook_addr"`
}

type ServerConfig struct {
	Addr string
}

type Server struct {
	cfg      ServerConfig
	info     Info
	stats    *Stats
	hub      *hub
	tunables *config.Manager
	gh       github.Service
	reporter TelegramReporter
	store    storage.Store
	log      logx.Logger
	upgrader websocket.Upgrader
}

func NewServer(
	cfg ServerConfig,
	info Info,
	stats *Stats,
	tunables *config.Manager,
	gh github.Service,
	reporter TelegramReporter,
	store storage.Store,
	log logx.Logger,
) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:      cfg,
		info:     info,
		stats:    stats,
		hub:      newHub(stats.bus, log),
		tunables: tunables,
		gh:       gh,
		reporter: reporter,
		store:    store,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Get("/", s.handleIndex)
	r.Get("/status", s.handleStatusPage)
	r.Get("/telegram-status", s.handleTelegramPage)
	r.Get("/api/status", s.handleAPIStatus)
	r.Get("/api/config", s.handleAPIConfig)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	return r
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.run(ctx)

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

	s.log.Info("dashboard started", logx.String("addr", s.cfg.Addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "dashboard"})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	tun := s.tunables.Get()

	githubAPI := map[string]any{"connected": false}
	if s.gh != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		quota, err := s.gh.RateLimit(ctx)
		cancel()
		if err == nil {
			githubAPI = map[string]any{
				"connected": true,
				"rate_limit": map[string]any{
					"limit":     quota.Limit,
					"remaining": quota.Remaining,
					"reset":     quota.ResetAt,
				},
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bot_running": true,
		"timestamp":   time.Now().UTC(),
		"stats":       snap,
		"github_api":  githubAPI,
		"configuration": map[string]any{
			"github_username": s.info.GitHubUsername,
			"allowed_chats":   s.info.AllowedChats,
			"rate_limit":      fmt.Sprintf("%d/%s", tun.RateLimit.Requests, tun.RateLimit.Window),
			"notifications": map[string]bool{
				"push":          tun.Notify.Push,
				"issues":        tun.Notify.Issues,
				"pull_requests": tun.Notify.PullRequests,
				"releases":      tun.Notify.Releases,
			},
		},
	})
}

func (s *Server) handleAPIConfig(w http.ResponseWriter, _ *http.Request) {
	tun := s.tunables.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"github_username":     s.info.GitHubUsername,
		"webhook_addr":        s.info.WebhookAddr,
		"allowed_chats_count": s.info.AllowedChats,
		"rate_limiting": map[string]any{
			"requests": tun.RateLimit.Requests,
			"window":   tun.RateLimit.Window.String(),
		},
		"notifications": map[string]bool{
			"push":          tun.Notify.Push,
			"issues":        tun.Notify.Issues,
			"pull_requests": tun.Notify.PullRequests,
			"releases":      tun.Notify.Releases,
		},
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", logx.Err(err))
		return
	}
	s.log.Debug("ws connected", logx.String("remote", r.RemoteAddr))

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 16), log: s.log}
	s.hub.register <- c

	go c.writePump()
	c.readPump()

	s.log.Debug("ws disconnected", logx.String("remote", r.RemoteAddr))
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, indexTmpl, map[string]any{"Info": s.info})
}

func (s *Server) handleStatusPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, statusTmpl, map[string]any{
		"Snap":     s.stats.Snapshot(),
		"Tunables": s.tunables.Get(),
		"Info":     s.info,
	})
}

func (s *Server) handleTelegramPage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Snap": s.stats.Snapshot()}
	if s.reporter != nil {
		at, errText, ok := s.reporter.LastResult()
		data["HasSend"] = ok
		data["LastSendAt"] = at
		data["LastSendErr"] = errText
		data["History"] = s.reporter.History()
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		deliveries, err := s.store.RecentDeliveries(ctx, 20)
		cancel()
		if err == nil {
			data["Deliveries"] = deliveries
		}
	}
	s.renderPage(w, telegramTmpl, data)
}

func (s *Server) renderPage(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		s.log.Warn("template render failed", logx.Err(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
