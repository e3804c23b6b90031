package infra

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_IncrArmsTTLOnlyOnCreation(t *testing.T) {
	cur := time.Now()
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return cur }))
	ctx := context.Background()

	n, err := s.Incr(ctx, "k", 10*time.Second)
	if err != nil || n != 1 {
		t.Fatalf("expected first incr to return 1, got %d (%v)", n, err)
	}

	cur = cur.Add(4 * time.Second)
	if n, _ = s.Incr(ctx, "k", 10*time.Second); n != 2 {
		t.Fatalf("expected second incr to return 2, got %d", n)
	}

	// o TTL conta do primeiro evento, não do último
	ttl, err := s.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 6*time.Second {
		t.Fatalf("expected ttl 6s, got %s", ttl)
	}
}

func TestMemoryStore_ExpiredKeyDisappears(t *testing.T) {
	cur := time.Now()
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return cur }))
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", time.Second)
	cur = cur.Add(1001 * time.Millisecond)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to expire")
	}

	// um incr depois da expiração recomeça do zero
	if n, _ := s.Incr(ctx, "k", time.Second); n != 1 {
		t.Fatalf("expected counter to restart at 1, got %d", n)
	}
}

func TestMemoryStore_DelAndNoTTL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v", 0)
	if ttl, _ := s.TTL(ctx, "k"); ttl != 0 {
		t.Fatalf("expected no ttl, got %s", ttl)
	}

	_ = s.Del(ctx, "k")
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be gone after Del")
	}
}
