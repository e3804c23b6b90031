package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

func TestSlidingWindow_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewSlidingWindow(0, time.Second); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for maxRequests=0, got %v", err)
	}
	if _, err := NewSlidingWindow(1, 0); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for window=0, got %v", err)
	}
}

func TestSlidingWindow_CountdownAndDenyWithinWindow(t *testing.T) {
	cur := time.Now()
	s, err := NewSlidingWindow(5, 300*time.Second, WithWindowClock(func() time.Time { return cur }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, want := range []int{4, 3, 2, 1, 0} {
		dec := s.TryAcquire("1.2.3.4")
		if !dec.Allowed {
			t.Fatalf("expected grant %d to be allowed", i+1)
		}
		if dec.Remaining != want {
			t.Fatalf("expected remaining %d after grant %d, got %d", want, i+1, dec.Remaining)
		}
	}

	cur = cur.Add(1 * time.Second)
	dec := s.TryAcquire("1.2.3.4")
	if dec.Allowed {
		t.Fatalf("expected 6th grant within window to be denied")
	}
	if dec.ResetAfter != 299*time.Second {
		t.Fatalf("expected ResetAfter=299s, got %s", dec.ResetAfter)
	}
}

func TestSlidingWindow_OldEventsLeaveTheWindow(t *testing.T) {
	cur := time.Now()
	s, _ := NewSlidingWindow(2, 100*time.Millisecond, WithWindowClock(func() time.Time { return cur }))

	s.TryAcquire("k")
	s.TryAcquire("k")
	if dec := s.TryAcquire("k"); dec.Allowed {
		t.Fatalf("expected third grant to be denied")
	}

	cur = cur.Add(101 * time.Millisecond)
	dec := s.TryAcquire("k")
	if !dec.Allowed {
		t.Fatalf("expected grant after the window slid")
	}
	if dec.Remaining != 1 {
		t.Fatalf("expected remaining 1 after eviction, got %d", dec.Remaining)
	}
}

func TestSlidingWindow_AcquireWaitsUntilWindowFrees(t *testing.T) {
	s, _ := NewSlidingWindow(1, 30*time.Millisecond)

	if err := s.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := s.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected acquire to wait for the window, waited %s", elapsed)
	}
}

func TestSlidingWindow_AcquireHonorsContextCancel(t *testing.T) {
	s, _ := NewSlidingWindow(1, 10*time.Second)

	if err := s.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx, "k"); err == nil {
		t.Fatalf("expected error when context expires during wait")
	}

	// a espera cancelada não pode ter consumido nada
	s.Reset()
	if dec := s.TryAcquire("k"); !dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("expected fresh window after reset, got %+v", dec)
	}
}

func TestSlidingWindow_SetRateChangesCeiling(t *testing.T) {
	s, _ := NewSlidingWindow(1, time.Second)

	s.SetRate(10)
	if got := s.Max(); got != 10 {
		t.Fatalf("expected ceiling 10, got %d", got)
	}
	if got := s.Rate(); got != 10 {
		t.Fatalf("expected rate 10, got %v", got)
	}

	if dec := s.TryAcquire("k"); !dec.Allowed {
		t.Fatalf("expected grant under the raised ceiling")
	}
	if dec := s.TryAcquire("k"); !dec.Allowed {
		t.Fatalf("expected second grant under the raised ceiling")
	}
}

func TestSlidingWindow_ResetBehavesLikeNewLimiter(t *testing.T) {
	s, _ := NewSlidingWindow(1, time.Hour)

	if dec := s.TryAcquire("k"); !dec.Allowed {
		t.Fatalf("expected first grant")
	}
	if dec := s.TryAcquire("k"); dec.Allowed {
		t.Fatalf("expected window to be full")
	}

	s.Reset()

	if dec := s.TryAcquire("k"); !dec.Allowed {
		t.Fatalf("expected grant after Reset")
	}
}

func TestSlidingWindow_CleanupRemovesIdleEntries(t *testing.T) {
	cur := time.Now()
	s, _ := NewSlidingWindow(1, 10*time.Millisecond,
		WithWindowClock(func() time.Time { return cur }),
		WithWindowIdleTTL(20*time.Millisecond),
		WithWindowCleanupEvery(0),
	)

	s.TryAcquire("k")
	cur = cur.Add(50 * time.Millisecond)

	s.Cleanup()

	s.mu.Lock()
	_, ok := s.entries["k"]
	s.mu.Unlock()
	if ok {
		t.Fatalf("expected idle entry to be removed")
	}
}
