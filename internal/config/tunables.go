package config

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	logx "ghrelay/pkg/logx"
)

// Manager holds the current Tunables and optionally hot-reloads them
// from a YAML overrides file. The rest of the config never changes at
// runtime; only notification flags and rate-limit parameters do.
type Manager struct {
	path string
	base Tunables

	mu      sync.RWMutex
	current Tunables

	subsMu sync.Mutex
	subs   []chan Tunables

	log logx.Logger

	// lastHash skips redundant publishes when the editor fires several
	// write events without content changes.
	lastHash uint64
}

// tunablesYAML is the on-disk shape; the window is a duration string
// ("60s", "2m") so the file stays human-editable.
type tunablesYAML struct {
	RateLimit struct {
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
	} `yaml:"rate_limit"`
	Notify *struct {
		Push         *bool `yaml:"push"`
		Issues       *bool `yaml:"issues"`
		PullRequests *bool `yaml:"pull_requests"`
		Releases     *bool `yaml:"releases"`
	} `yaml:"notify"`
}

func NewManager(path string, base Tunables, log logx.Logger) *Manager {
	return &Manager{path: path, base: base, current: base, log: log}
}

// Get returns the current tunables snapshot.
func (m *Manager) Get() Tunables {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Load parses the overrides file once and commits the result.
// A missing path is not an error; the env-derived base applies.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}
	t, err := m.parse()
	if err != nil {
		return err
	}
	m.commit(t)
	return nil
}

func (m *Manager) parse() (Tunables, error) {
	out := m.base

	b, err := os.ReadFile(m.path)
	if err != nil {
		return out, err
	}

	var raw tunablesYAML
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return out, fmt.Errorf("%s: %w", m.path, err)
	}

	if raw.RateLimit.Requests > 0 {
		out.RateLimit.Requests = raw.RateLimit.Requests
	}
	if raw.RateLimit.Window != "" {
		d, err := time.ParseDuration(raw.RateLimit.Window)
		if err != nil || d <= 0 {
			return out, fmt.Errorf("%s: rate_limit.window: invalid duration %q", m.path, raw.RateLimit.Window)
		}
		out.RateLimit.Window = d
	}
	if raw.Notify != nil {
		if raw.Notify.Push != nil {
			out.Notify.Push = *raw.Notify.Push
		}
		if raw.Notify.Issues != nil {
			out.Notify.Issues = *raw.Notify.Issues
		}
		if raw.Notify.PullRequests != nil {
			out.Notify.PullRequests = *raw.Notify.PullRequests
		}
		if raw.Notify.Releases != nil {
			out.Notify.Releases = *raw.Notify.Releases
		}
	}

	return out, out.Validate()
}

func (m *Manager) commit(t Tunables) {
	m.mu.Lock()
	m.current = t
	m.lastHash = hashTunables(t)
	m.mu.Unlock()
}

func hashTunables(t Tunables) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%t%t%t%t",
		t.RateLimit.Requests, t.RateLimit.Window,
		t.Notify.Push, t.Notify.Issues, t.Notify.PullRequests, t.Notify.Releases)
	return h.Sum64()
}

// Subscribe registers for tunables updates. Slow subscribers may miss
// intermediate values; the latest snapshot is always available via Get.
func (m *Manager) Subscribe(buffer int) chan Tunables {
	ch := make(chan Tunables, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan Tunables) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(t Tunables) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- t:
		default:
			// drop oldest, push newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t:
			default:
			}
		}
	}
}

// Watch reloads the overrides file on change until ctx is done.
// Reload is transactional: a file that fails to parse or validate is
// rejected and the previous tunables stay in effect.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("tunables watcher started", logx.String("dir", dir), logx.String("file", file))

	// Debounce to avoid reacting to partial writes.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			t, err := m.parse()
			if err != nil {
				m.log.Warn("tunables reload rejected", logx.String("path", m.path), logx.Err(err))
				return
			}
			h := hashTunables(t)
			m.mu.RLock()
			unchanged := h == m.lastHash
			m.mu.RUnlock()
			if unchanged {
				return
			}
			m.commit(t)
			m.publish(t)
			m.log.Info("tunables reloaded",
				logx.Int("rate_limit_requests", t.RateLimit.Requests),
				logx.Duration("rate_limit_window", t.RateLimit.Window))
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("tunables watch error", logx.Err(err))
		}
	}
}
