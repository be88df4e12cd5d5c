package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllowUpToLimitThenDeny(t *testing.T) {
	l := New(3, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !l.Allow(42, now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("call %d: expected allow", i+1)
		}
	}
	if l.Allow(42, now.Add(3*time.Second)) {
		t.Fatal("4th call within window: expected deny")
	}
}

func TestWindowSlides(t *testing.T) {
	l := New(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !l.Allow(7, now) {
		t.Fatal("first call should be allowed")
	}
	if !l.Allow(7, now.Add(30*time.Second)) {
		t.Fatal("second call should be allowed")
	}
	if l.Allow(7, now.Add(59*time.Second)) {
		t.Fatal("third call inside window should be denied")
	}
	// The first accepted call slides out after the window elapses.
	if !l.Allow(7, now.Add(61*time.Second)) {
		t.Fatal("call after window advanced should be allowed")
	}
}

func TestChatsAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Now()

	if !l.Allow(1, now) {
		t.Fatal("chat 1 should be allowed")
	}
	if !l.Allow(2, now) {
		t.Fatal("chat 2 should not share chat 1's budget")
	}
	if l.Allow(1, now) {
		t.Fatal("chat 1 exhausted its budget")
	}
}

func TestUnknownChatStartsEmpty(t *testing.T) {
	l := New(5, time.Minute)
	if !l.Allow(999, time.Now()) {
		t.Fatal("unknown chat must initialize an empty window and allow")
	}
}

func TestSetParamsTakesEffect(t *testing.T) {
	l := New(10, time.Minute)
	now := time.Now()

	for i := 0; i < 5; i++ {
		l.Allow(3, now)
	}
	l.SetParams(5, time.Minute)
	if l.Allow(3, now) {
		t.Fatal("lowered limit should deny the 6th call")
	}
}

func TestPruneDropsExpiredChats(t *testing.T) {
	l := New(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Allow(1, now)
	l.Allow(2, now.Add(50*time.Second))

	if got := l.Prune(now.Add(70 * time.Second)); got != 1 {
		t.Fatalf("Prune removed %d chats, want 1", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New(100, time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	for chat := int64(0); chat < 8; chat++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Allow(id, now.Add(time.Duration(i)*time.Millisecond))
			}
		}(chat)
	}
	wg.Wait()

	// Each chat consumed its own budget of 100.
	for chat := int64(0); chat < 8; chat++ {
		if l.Allow(chat, now.Add(300*time.Millisecond)) {
			t.Fatalf("chat %d should be rate limited", chat)
		}
	}
}
