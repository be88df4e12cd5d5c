// Package ratelimit implements a per-chat sliding-window limiter.
//
// Each chat keeps the ordered timestamps of its accepted requests
// within the trailing window; the window is pruned lazily on every
// check. Chats are isolated: a slow decision for one chat never blocks
// another.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu    sync.Mutex // guards chats map and params
	chats map[int64]*window

	requests int
	period   time.Duration
}

type window struct {
	mu    sync.Mutex
	times []time.Time
}

func New(requests int, period time.Duration) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	return &Limiter{
		chats:    make(map[int64]*window),
		requests: requests,
		period:   period,
	}
}

// SetParams applies new limit parameters. Existing windows keep their
// recorded timestamps; the new parameters take effect on the next check.
func (l *Limiter) SetParams(requests int, period time.Duration) {
	if requests <= 0 || period <= 0 {
		return
	}
	l.mu.Lock()
	l.requests = requests
	l.period = period
	l.mu.Unlock()
}

// Allow reports whether a request from chatID at instant now is within
// the limit, recording it when allowed. Never blocks on other chats.
func (l *Limiter) Allow(chatID int64, now time.Time) bool {
	l.mu.Lock()
	w := l.chats[chatID]
	if w == nil {
		w = &window{}
		l.chats[chatID] = w
	}
	requests := l.requests
	period := l.period
	l.mu.Unlock()

	cutoff := now.Add(-period)

	w.mu.Lock()
	defer w.mu.Unlock()

	// Drop timestamps that slid out of the window.
	keep := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.times = keep

	if len(w.times) >= requests {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Prune drops chats whose whole window has expired. Called periodically
// so long-gone chats don't pin memory.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	period := l.period
	chats := make(map[int64]*window, len(l.chats))
	for id, w := range l.chats {
		chats[id] = w
	}
	l.mu.Unlock()

	cutoff := now.Add(-period)
	var stale []int64
	for id, w := range chats {
		w.mu.Lock()
		empty := true
		for _, t := range w.times {
			if t.After(cutoff) {
				empty = false
				break
			}
		}
		w.mu.Unlock()
		if empty {
			stale = append(stale, id)
		}
	}

	l.mu.Lock()
	for _, id := range stale {
		delete(l.chats, id)
	}
	removed := len(stale)
	l.mu.Unlock()
	return removed
}
