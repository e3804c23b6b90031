package infra

import (
	"context"
	"strconv"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// MemoryStore é uma implementação em memória de domain.CounterStore.
// Útil para testes e desenvolvimento; não compartilha estado entre processos.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = sem TTL
}

type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock troca a fonte de tempo (testes).
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.liveLocked(key)
	if ent == nil {
		return "", false, nil
	}
	return ent.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := &memEntry{value: value}
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = ent
	return nil
}

// Incr arma o TTL apenas quando cria a chave, espelhando o contrato do store
// remoto: a janela expira contada do primeiro evento.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.liveLocked(key)
	if ent == nil {
		ent = &memEntry{value: "0"}
		if ttl > 0 {
			ent.expiresAt = s.now().Add(ttl)
		}
		s.entries[key] = ent
	}

	n, _ := strconv.ParseInt(ent.value, 10, 64)
	n++
	ent.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.liveLocked(key)
	if ent == nil || ent.expiresAt.IsZero() {
		return 0, nil
	}
	return ent.expiresAt.Sub(s.now()), nil
}

// liveLocked devolve a entrada se ainda não expirou; expiração é preguiçosa.
func (s *MemoryStore) liveLocked(key string) *memEntry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !ent.expiresAt.IsZero() && !s.now().Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

var _ domain.CounterStore = (*MemoryStore)(nil)
