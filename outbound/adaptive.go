package outbound

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// AdaptiveController envolve uma Strategy e reajusta a taxa configurada a
// partir do feedback de sucesso/erro do colaborador.
//
// A resposta é assimétrica de propósito: sinal explícito de throttling
// derruba a taxa na hora, sem porteira de cooldown; recuperação exige uma
// sequência de sucessos E o cooldown, para não oscilar.
type AdaptiveController struct {
	mu sync.Mutex

	strategy domain.Strategy

	rate           float64
	minRate        float64
	maxRate        float64
	backoffFactor  float64
	recoveryFactor float64

	successes  int
	failures   int
	threshold  int
	lastAdjust time.Time
	cooldown   time.Duration

	now func() time.Time
}

type AdaptiveConfig struct {
	MinRate float64
	MaxRate float64

	// BackoffFactor multiplica a taxa em erro de rate limit (< 1).
	BackoffFactor float64
	// RecoveryFactor multiplica a taxa após a sequência de sucessos (> 1).
	RecoveryFactor float64

	// RecoveryThreshold é a sequência exigida; default 10.
	RecoveryThreshold int
	Cooldown          time.Duration

	// Now troca a fonte de tempo (testes).
	Now func() time.Time
}

func NewAdaptiveController(strategy domain.Strategy, cfg AdaptiveConfig) (*AdaptiveController, error) {
	if strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", domain.ErrInvalidConfig)
	}

	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 0.5
	}
	if cfg.RecoveryFactor == 0 {
		cfg.RecoveryFactor = 1.2
	}
	if cfg.RecoveryThreshold == 0 {
		cfg.RecoveryThreshold = 10
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.BackoffFactor <= 0 || cfg.BackoffFactor >= 1 {
		return nil, fmt.Errorf("%w: BackoffFactor must be in (0, 1)", domain.ErrInvalidConfig)
	}
	if cfg.RecoveryFactor <= 1 {
		return nil, fmt.Errorf("%w: RecoveryFactor must be > 1", domain.ErrInvalidConfig)
	}
	if cfg.MinRate <= 0 || cfg.MaxRate < cfg.MinRate {
		return nil, fmt.Errorf("%w: need 0 < MinRate <= MaxRate", domain.ErrInvalidConfig)
	}

	rate := strategy.Rate()
	if rate < cfg.MinRate {
		rate = cfg.MinRate
	}
	if rate > cfg.MaxRate {
		rate = cfg.MaxRate
	}
	strategy.SetRate(rate)

	return &AdaptiveController{
		strategy:       strategy,
		rate:           rate,
		minRate:        cfg.MinRate,
		maxRate:        cfg.MaxRate,
		backoffFactor:  cfg.BackoffFactor,
		recoveryFactor: cfg.RecoveryFactor,
		threshold:      cfg.RecoveryThreshold,
		cooldown:       cfg.Cooldown,
		now:            cfg.Now,
	}, nil
}

func (a *AdaptiveController) Acquire(ctx context.Context, key domain.Key) error {
	return a.strategy.Acquire(ctx, key)
}

func (a *AdaptiveController) TryAcquire(key domain.Key) domain.Decision {
	return a.strategy.TryAcquire(key)
}

// SetRate ajusta manualmente, respeitando o corredor [minRate, maxRate].
func (a *AdaptiveController) SetRate(rps float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyRateLocked(rps)
}

func (a *AdaptiveController) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate
}

// Reset limpa o estado da strategy envolvida; a taxa corrente é mantida.
func (a *AdaptiveController) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successes = 0
	a.failures = 0
	a.strategy.Reset()
}

// ReportSuccess conta a sequência e, atingido o limiar fora do cooldown,
// recupera a taxa devagar.
func (a *AdaptiveController) ReportSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes++
	a.failures = 0

	if a.successes >= a.threshold && a.now().Sub(a.lastAdjust) >= a.cooldown {
		a.applyRateLocked(a.rate * a.recoveryFactor)
		a.successes = 0
		a.lastAdjust = a.now()
	}
}

// ReportRateLimitError reage na hora: o colaborador disse explicitamente
// para desacelerar, então nenhuma porteira de cooldown se aplica.
func (a *AdaptiveController) ReportRateLimitError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.applyRateLocked(a.rate * a.backoffFactor)
	a.successes = 0
	a.failures = 0
	a.lastAdjust = a.now()
}

// ReportGenericError zera só a sequência de sucessos; falha genérica não é
// sinal de throttling e não mexe na taxa.
func (a *AdaptiveController) ReportGenericError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes = 0
	a.failures++
}

func (a *AdaptiveController) applyRateLocked(rps float64) {
	rps = math.Max(a.minRate, math.Min(a.maxRate, rps))
	a.rate = rps
	a.strategy.SetRate(rps)
}

var _ domain.Strategy = (*AdaptiveController)(nil)
