package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"golang.org/x/time/rate"
)

// TokenBucket implementa domain.Strategy com um token bucket por chave
// (golang.org/x/time/rate), com cache por chave e limpeza periódica de
// chaves ociosas.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucket)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.cleanupEvery = d }
}

// NewTokenBucket rejeita taxa <= 0 no setup: taxa zero dividiria por zero no
// cálculo de espera do bucket.
func NewTokenBucket(rps float64, burst int, opts ...TokenBucketOption) (*TokenBucket, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("%w: rate must be > 0", domain.ErrInvalidConfig)
	}
	if burst <= 0 {
		burst = 1
	}

	s := &TokenBucket{
		entries:      make(map[domain.Key]*bucketEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenBucket) get(key domain.Key) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Acquire bloqueia até haver um token ou o ctx encerrar. No cancelamento a
// reserva é devolvida ao bucket (rate.Limiter.Wait cuida disso), então não há
// duplo decremento.
func (s *TokenBucket) Acquire(ctx context.Context, key domain.Key) error {
	return s.get(key).Wait(ctx)
}

// TryAcquire decide sem esperar. Quando nega, desfaz a reserva para não
// consumir a cota de quem está esperando em Acquire.
func (s *TokenBucket) TryAcquire(key domain.Key) domain.Decision {
	lim := s.get(key)

	res := lim.Reserve()
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return domain.Decision{Allowed: false, ResetAfter: d}
	}

	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{Allowed: true, Remaining: remaining}
}

// SetRate reconfigura a taxa dos buckets existentes e dos futuros.
func (s *TokenBucket) SetRate(rps float64) {
	if rps <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rps = rate.Limit(rps)
	for _, ent := range s.entries {
		ent.lim.SetLimit(s.rps)
	}
}

func (s *TokenBucket) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.rps)
}

func (s *TokenBucket) Burst() int { return s.burst }

// Reset descarta todos os buckets; o próximo Acquire parte do burst cheio.
func (s *TokenBucket) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Key]*bucketEntry)
}

func (s *TokenBucket) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucket) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
