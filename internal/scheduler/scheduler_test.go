package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFiresOnce(t *testing.T) {
	tm := New()
	ctx, cancel := context.WithCancel(context.Background())
	go tm.Run(ctx)
	defer func() {
		cancel()
		tm.Wait()
	}()

	var fired int32
	done := make(chan struct{})
	tm.After(10*time.Millisecond, func(now time.Time) (time.Duration, bool) {
		atomic.AddInt32(&fired, 1)
		close(done)
		return 0, true
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never fired")
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected exactly one firing, got %d", fired)
	}
}

func TestTimerReschedulesUntilDone(t *testing.T) {
	tm := New()
	ctx, cancel := context.WithCancel(context.Background())
	go tm.Run(ctx)
	defer func() {
		cancel()
		tm.Wait()
	}()

	var count int32
	done := make(chan struct{})
	var task Task
	task = func(now time.Time) (time.Duration, bool) {
		n := atomic.AddInt32(&count, 1)
		if n >= 3 {
			close(done)
			return 0, true
		}
		return 5 * time.Millisecond, false
	}
	tm.After(5*time.Millisecond, task)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete its three firings")
	}
	if atomic.LoadInt32(&count) != 3 {
		t.Fatalf("expected 3 firings, got %d", count)
	}
}

func TestHandleCancelPreventsFiring(t *testing.T) {
	tm := New()
	ctx, cancel := context.WithCancel(context.Background())
	go tm.Run(ctx)
	defer func() {
		cancel()
		tm.Wait()
	}()

	var fired int32
	h := tm.After(20*time.Millisecond, func(now time.Time) (time.Duration, bool) {
		atomic.AddInt32(&fired, 1)
		return 0, true
	})
	h.Cancel()

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("expected canceled task not to fire")
	}
}

func TestTimerOrdersByDeadline(t *testing.T) {
	tm := New()
	ctx, cancel := context.WithCancel(context.Background())
	go tm.Run(ctx)
	defer func() {
		cancel()
		tm.Wait()
	}()

	order := make(chan int, 2)
	tm.After(40*time.Millisecond, func(now time.Time) (time.Duration, bool) {
		order <- 2
		return 0, true
	})
	tm.After(10*time.Millisecond, func(now time.Time) (time.Duration, bool) {
		order <- 1
		return 0, true
	})

	first := <-order
	second := <-order
	if first != 1 || second != 2 {
		t.Fatalf("expected firing order [1,2], got [%d,%d]", first, second)
	}
}
