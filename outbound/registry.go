package outbound

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

// Registry mantém limiters nomeados por serviço externo. É construído
// explicitamente e injetado no startup — nada de instância global de import.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*registryEntry
	logger   *zap.Logger
}

type registryEntry struct {
	strategy domain.Strategy
	adaptive *AdaptiveController // nil quando não adaptativo
	acquired atomic.Int64
}

// ServiceOptions configura um serviço registrado.
type ServiceOptions struct {
	// Strategy escolhe o algoritmo; default token bucket.
	Strategy domain.StrategyKind

	// Burst do token bucket; 0 usa max(1, round(2*taxa)).
	Burst int

	// Window da sliding window; default 1s.
	Window time.Duration

	Adaptive       bool
	AdaptiveConfig AdaptiveConfig
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		services: make(map[string]*registryEntry),
		logger:   logger,
	}
}

// AddService cria (ou sobrescreve, idempotente) o limiter do serviço.
func (r *Registry) AddService(name string, ratePerSecond float64, opts ServiceOptions) error {
	if name == "" {
		return fmt.Errorf("%w: service name is required", domain.ErrInvalidConfig)
	}
	if ratePerSecond <= 0 {
		return fmt.Errorf("%w: rate must be > 0", domain.ErrInvalidConfig)
	}

	var strategy domain.Strategy
	switch opts.Strategy {
	case "", domain.StrategyTokenBucket:
		burst := opts.Burst
		if burst <= 0 {
			burst = int(math.Round(ratePerSecond * 2))
			if burst < 1 {
				burst = 1
			}
		}
		tb, err := infra.NewTokenBucket(ratePerSecond, burst)
		if err != nil {
			return err
		}
		strategy = tb
	case domain.StrategySlidingWindow:
		window := opts.Window
		if window <= 0 {
			window = time.Second
		}
		max := int(math.Ceil(ratePerSecond * window.Seconds()))
		if max < 1 {
			max = 1
		}
		sw, err := infra.NewSlidingWindow(max, window)
		if err != nil {
			return err
		}
		strategy = sw
	default:
		return fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidConfig, opts.Strategy)
	}

	ent := &registryEntry{strategy: strategy}
	if opts.Adaptive {
		cfg := opts.AdaptiveConfig
		if cfg.MinRate == 0 {
			cfg.MinRate = ratePerSecond / 10
		}
		if cfg.MaxRate == 0 {
			cfg.MaxRate = ratePerSecond * 2
		}
		ad, err := NewAdaptiveController(strategy, cfg)
		if err != nil {
			return err
		}
		ent.strategy = ad
		ent.adaptive = ad
	}

	r.mu.Lock()
	r.services[name] = ent
	r.mu.Unlock()
	return nil
}

// Get devolve o limiter do serviço, quando registrado.
func (r *Registry) Get(name string) (domain.Strategy, bool) {
	ent, ok := r.entry(name)
	if !ok {
		return nil, false
	}
	return ent.strategy, true
}

// Acquire bloqueia até o serviço liberar uma unidade. Nome não registrado
// falha aberto com warning — risco documentado: a chamada segue sem limite.
func (r *Registry) Acquire(ctx context.Context, name string) error {
	ent, ok := r.entry(name)
	if !ok {
		r.logger.Warn("acquire on unknown service, failing open", zap.String("service", name))
		return nil
	}

	if err := ent.strategy.Acquire(ctx, domain.Key(name)); err != nil {
		return err
	}
	ent.acquired.Add(1)
	return nil
}

// TryAcquire decide sem esperar; nome não registrado falha aberto.
func (r *Registry) TryAcquire(name string) domain.Decision {
	ent, ok := r.entry(name)
	if !ok {
		r.logger.Warn("try-acquire on unknown service, failing open", zap.String("service", name))
		return domain.Decision{Allowed: true}
	}

	dec := ent.strategy.TryAcquire(domain.Key(name))
	if dec.Allowed {
		ent.acquired.Add(1)
	}
	return dec
}

func (r *Registry) ReportSuccess(name string) {
	if ent, ok := r.entry(name); ok && ent.adaptive != nil {
		ent.adaptive.ReportSuccess()
	}
}

func (r *Registry) ReportRateLimitError(name string) {
	if ent, ok := r.entry(name); ok && ent.adaptive != nil {
		ent.adaptive.ReportRateLimitError()
	}
}

func (r *Registry) ReportGenericError(name string) {
	if ent, ok := r.entry(name); ok && ent.adaptive != nil {
		ent.adaptive.ReportGenericError()
	}
}

// Do adquire, executa a chamada e classifica o desfecho para o feedback
// adaptativo: domain.ErrRateLimited (ou embrulhos dele) vira backoff.
func (r *Registry) Do(ctx context.Context, name string, fn func() error) error {
	if err := r.Acquire(ctx, name); err != nil {
		return err
	}

	err := fn()
	switch {
	case err == nil:
		r.ReportSuccess(name)
	case errors.Is(err, domain.ErrRateLimited):
		r.ReportRateLimitError(name)
	default:
		r.ReportGenericError(name)
	}
	return err
}

// ServiceStats é uma leitura pontual de um serviço registrado.
type ServiceStats struct {
	Rate     float64
	Adaptive bool
	Acquired int64
}

func (r *Registry) AllStats() map[string]ServiceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceStats, len(r.services))
	for name, ent := range r.services {
		out[name] = ServiceStats{
			Rate:     ent.strategy.Rate(),
			Adaptive: ent.adaptive != nil,
			Acquired: ent.acquired.Load(),
		}
	}
	return out
}

// ResetAll descarta o estado de todos os limiters; o próximo acquire se
// comporta como em um limiter recém-construído.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ent := range r.services {
		ent.strategy.Reset()
		ent.acquired.Store(0)
	}
}

func (r *Registry) entry(name string) (*registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.services[name]
	return ent, ok
}
