package infra

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// SlidingWindow implementa domain.Strategy contando eventos concedidos na
// janela móvel.
//
// A lista de timestamps de uma chave fica limitada a maxRequests: a evicção
// antes de cada checagem, somada ao teto de concessão, impede crescimento
// sem limite.
type SlidingWindow struct {
	mu      sync.Mutex
	entries map[domain.Key]*windowEntry
	max     int
	window  time.Duration

	idleTTL      time.Duration
	cleanupEvery time.Duration

	now func() time.Time
}

type windowEntry struct {
	grants   []time.Time
	lastSeen time.Time
}

type SlidingWindowOption func(*SlidingWindow)

func WithWindowIdleTTL(d time.Duration) SlidingWindowOption {
	return func(s *SlidingWindow) { s.idleTTL = d }
}

func WithWindowCleanupEvery(d time.Duration) SlidingWindowOption {
	return func(s *SlidingWindow) { s.cleanupEvery = d }
}

// WithWindowClock troca a fonte de tempo (testes).
func WithWindowClock(now func() time.Time) SlidingWindowOption {
	return func(s *SlidingWindow) { s.now = now }
}

func NewSlidingWindow(maxRequests int, window time.Duration, opts ...SlidingWindowOption) (*SlidingWindow, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("%w: maxRequests must be > 0", domain.ErrInvalidConfig)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be > 0", domain.ErrInvalidConfig)
	}

	s := &SlidingWindow{
		entries:      make(map[domain.Key]*windowEntry),
		max:          maxRequests,
		window:       window,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TryAcquire decide sem esperar. Quando nega, ResetAfter aponta para o
// instante em que o evento mais antigo sai da janela.
func (s *SlidingWindow) TryAcquire(key domain.Key) domain.Decision {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &windowEntry{}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	s.evictLocked(ent, now)

	if len(ent.grants) < s.max {
		ent.grants = append(ent.grants, now)
		return domain.Decision{Allowed: true, Remaining: s.max - len(ent.grants)}
	}

	wait := ent.grants[0].Add(s.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return domain.Decision{Allowed: false, ResetAfter: wait}
}

// Acquire espera em laço explícito, limitado pelo prazo do ctx. Nada é
// consumido até a concessão, então cancelar a espera não corrompe a chave.
func (s *SlidingWindow) Acquire(ctx context.Context, key domain.Key) error {
	for {
		dec := s.TryAcquire(key)
		if dec.Allowed {
			return nil
		}

		wait := dec.ResetAfter
		if wait <= 0 {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// SetRate traduz a taxa média (req/s) de volta para o teto da janela.
func (s *SlidingWindow) SetRate(rps float64) {
	if rps <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	max := int(math.Ceil(rps * s.window.Seconds()))
	if max < 1 {
		max = 1
	}
	s.max = max
}

func (s *SlidingWindow) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.max) / s.window.Seconds()
}

func (s *SlidingWindow) Max() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

func (s *SlidingWindow) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Key]*windowEntry)
}

func (s *SlidingWindow) Cleanup() {
	now := s.now()
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		s.evictLocked(ent, now)
		if len(ent.grants) == 0 && ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *SlidingWindow) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

func (s *SlidingWindow) evictLocked(ent *windowEntry, now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(ent.grants) && !ent.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ent.grants = append(ent.grants[:0], ent.grants[i:]...)
	}
}
