package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ghrelay/internal/eventbus"
	"ghrelay/internal/storage"
	kit "ghrelay/internal/transport"
	logx "ghrelay/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []int64
	fail  map[int64]int // chat -> remaining failures
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := a.fail[to.ChatID]; n > 0 {
		a.fail[to.ChatID] = n - 1
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	a.sent = append(a.sent, to.ChatID)
	return kit.MessageRef{}, nil
}

func (a *fakeAdapter) delivered() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int64(nil), a.sent...)
}

type fakeStore struct {
	storage.Store
	subs       map[string][]int64
	deliveries []storage.Delivery
	mu         sync.Mutex
}

func (s *fakeStore) SubscribersFor(_ context.Context, repo string) ([]int64, error) {
	return s.subs[repo], nil
}

func (s *fakeStore) RecordDelivery(_ context.Context, d storage.Delivery) error {
	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	s.mu.Unlock()
	return nil
}

func newTestSender(adapter *fakeAdapter, store storage.Store, chats ...int64) *Sender {
	return NewSender(Config{
		Chats:       chats,
		RatePerSec:  1000,
		SendTimeout: time.Second,
		RetryDelay:  time.Millisecond,
	}, adapter, store, eventbus.New(), logx.Nop())
}

func TestBroadcastReachesAllConfiguredChats(t *testing.T) {
	a := &fakeAdapter{}
	s := newTestSender(a, nil, 1, 2, 3)

	s.Broadcast(context.Background(), "push", "o/r", "hello")

	got := a.delivered()
	if len(got) != 3 {
		t.Fatalf("delivered to %v, want 3 chats", got)
	}
}

func TestBroadcastIncludesSubscribersWithoutDuplicates(t *testing.T) {
	a := &fakeAdapter{}
	st := &fakeStore{subs: map[string][]int64{"o/r": {2, 9}}}
	s := newTestSender(a, st, 1, 2)

	s.Broadcast(context.Background(), "push", "o/r", "hello")

	got := a.delivered()
	if len(got) != 3 {
		t.Fatalf("delivered to %v, want chats 1,2,9", got)
	}
	seen := map[int64]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("chat %d notified twice", id)
		}
		seen[id] = true
	}
	if !seen[9] {
		t.Fatalf("subscriber 9 not notified: %v", got)
	}
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	a := &fakeAdapter{fail: map[int64]int{2: 10}}
	st := &fakeStore{}
	s := newTestSender(a, st, 1, 2, 3)

	s.Broadcast(context.Background(), "release", "o/r", "v1")

	got := a.delivered()
	if len(got) != 2 {
		t.Fatalf("delivered to %v, want chats 1 and 3", got)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.deliveries) != 1 || st.deliveries[0].Failed != 1 || st.deliveries[0].Chats != 3 {
		t.Fatalf("unexpected delivery record: %+v", st.deliveries)
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	a := &fakeAdapter{fail: map[int64]int{5: 1}}
	s := NewSender(Config{
		Chats:      []int64{5},
		RatePerSec: 1000,
		RetryMax:   2,
		RetryDelay: time.Millisecond,
	}, a, nil, eventbus.New(), logx.Nop())

	s.Broadcast(context.Background(), "push", "", "hello")

	if got := a.delivered(); len(got) != 1 {
		t.Fatalf("retry did not recover: delivered %v", got)
	}
}

func TestLastResultTracksOutcome(t *testing.T) {
	a := &fakeAdapter{}
	s := newTestSender(a, nil, 1)

	if _, _, ok := s.LastResult(); ok {
		t.Fatal("LastResult ok before any send")
	}
	s.Broadcast(context.Background(), "push", "", "hello")
	at, errText, ok := s.LastResult()
	if !ok || errText != "" || at.IsZero() {
		t.Fatalf("LastResult = (%v, %q, %v)", at, errText, ok)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	a := &fakeAdapter{}
	s := newTestSender(a, nil, 1)
	for i := 0; i < historyMax+10; i++ {
		s.Broadcast(context.Background(), "push", "", "x")
	}
	if n := len(s.History()); n != historyMax {
		t.Fatalf("history length %d, want %d", n, historyMax)
	}
}
