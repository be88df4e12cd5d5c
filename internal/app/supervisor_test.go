package app

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "ghrelay/pkg/logx"
)

func TestSupervisorStopDrainsGoroutines(t *testing.T) {
	sup := NewSupervisor(context.Background(), logx.Nop(), true)
	done := make(chan struct{})
	sup.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("goroutine did not unwind")
	}
}

func TestSupervisorCancelsGroupOnFirstError(t *testing.T) {
	sup := NewSupervisor(context.Background(), logx.Nop(), true)
	boom := errors.New("boom")
	sup.Go("failing", func(ctx context.Context) error { return boom })
	sup.Go("peer", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("group not canceled after fatal error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("want first error, got %v", err)
	}
}

func TestSupervisorRecoversPanic(t *testing.T) {
	sup := NewSupervisor(context.Background(), logx.Nop(), true)
	sup.Go("panicky", func(ctx context.Context) error { panic("ouch") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if err == nil {
		t.Fatalf("want panic surfaced as error")
	}
}

func TestSupervisorGoRestartStopsOnCleanExit(t *testing.T) {
	sup := NewSupervisor(context.Background(), logx.Nop(), false)
	runs := make(chan struct{}, 4)
	sup.GoRestart("oneshot", func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	})

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("function never ran")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("clean exit must not restart, ran %d extra times", len(runs))
	}
}
