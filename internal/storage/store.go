// Package storage persists chat repository subscriptions and the
// notification delivery history in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "ghrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("storage disabled")

// Subscription is one chat watching one repository.
type Subscription struct {
	ChatID    int64
	Repo      string
	CreatedAt time.Time
}

// Delivery is one recorded notification fanout.
type Delivery struct {
	At     time.Time
	Event  string
	Repo   string
	Chats  int
	Failed int
}

// Store is the persistence API used by the bot and the webhook path.
type Store interface {
	Subscribe(ctx context.Context, chatID int64, repo string) (added bool, err error)
	Unsubscribe(ctx context.Context, chatID int64, repo string) (removed bool, err error)
	Subscriptions(ctx context.Context, chatID int64) ([]Subscription, error)
	SubscribersFor(ctx context.Context, repo string) ([]int64, error)
	RecordDelivery(ctx context.Context, d Delivery) error
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	DeliverySummary(ctx context.Context, since time.Time) (DeliveryStats, error)
	PruneDeliveries(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Open initializes the store. An empty path disables persistence and
// returns (nil, nil); callers must treat a nil Store as feature-off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("path", path))
	return st, nil
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// normalizeRepo canonicalizes owner/name; GitHub treats both parts as
// case-insensitive.
func normalizeRepo(repo string) string {
	return strings.ToLower(strings.TrimSpace(repo))
}

func (s *sqliteStore) Subscribe(ctx context.Context, chatID int64, repo string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions(chat_id, repo, created_at) VALUES(?,?,?)`,
		chatID, normalizeRepo(repo), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) Unsubscribe(ctx context.Context, chatID int64, repo string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND repo = ?`,
		chatID, normalizeRepo(repo),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) Subscriptions(ctx context.Context, chatID int64) ([]Subscription, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, repo, created_at FROM subscriptions WHERE chat_id = ? ORDER BY repo`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var created string
		if err := rows.Scan(&sub.ChatID, &sub.Repo, &created); err != nil {
			return nil, err
		}
		sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SubscribersFor(ctx context.Context, repo string) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM subscriptions WHERE repo = ? ORDER BY chat_id`,
		normalizeRepo(repo),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecordDelivery(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, event, repo, chats, failed) VALUES(?,?,?,?,?)`,
		d.At.UTC().Format(time.RFC3339Nano), d.Event, nullStr(d.Repo), d.Chats, d.Failed,
	)
	return err
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, event, COALESCE(repo, ''), chats, failed FROM deliveries ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var at string
		if err := rows.Scan(&at, &d.Event, &d.Repo, &d.Chats, &d.Failed); err != nil {
			return nil, err
		}
		d.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeliveryStats aggregates the delivery history for the daily digest.
type DeliveryStats struct {
	Total   int
	Failed  int
	ByEvent map[string]int
}

func (s *sqliteStore) DeliverySummary(ctx context.Context, since time.Time) (DeliveryStats, error) {
	stats := DeliveryStats{ByEvent: map[string]int{}}
	if s == nil || s.db == nil {
		return stats, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event, COUNT(*), SUM(failed) FROM deliveries WHERE at >= ? GROUP BY event`,
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var event string
		var count, failed int
		if err := rows.Scan(&event, &count, &failed); err != nil {
			return stats, err
		}
		stats.ByEvent[event] = count
		stats.Total += count
		stats.Failed += failed
	}
	return stats, rows.Err()
}

func (s *sqliteStore) PruneDeliveries(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
