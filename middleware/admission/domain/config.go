package domain

import (
	"fmt"
	"math"
	"time"
)

// StrategyKind identifica o algoritmo de limitação.
type StrategyKind string

const (
	StrategyTokenBucket   StrategyKind = "token_bucket"
	StrategySlidingWindow StrategyKind = "sliding_window"
)

// LimitConfig descreve um teto de requisições por janela.
//
// Invariante: MaxRequests > 0 e Window > 0. Taxa zero é erro de configuração
// e deve ser rejeitada no setup (evita divisão por zero no cálculo de espera).
type LimitConfig struct {
	MaxRequests int
	Window      time.Duration
	Strategy    StrategyKind

	// Burst é opcional; 0 usa o padrão do token bucket (max(1, 2*MaxRequests)).
	Burst int

	// Message substitui a mensagem genérica na resposta de rejeição.
	Message string
}

func (c LimitConfig) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: MaxRequests must be > 0", ErrInvalidConfig)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: Window must be > 0", ErrInvalidConfig)
	}
	switch c.Strategy {
	case "", StrategyTokenBucket, StrategySlidingWindow:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	return nil
}

// RatePerSecond converte o teto da janela em taxa média (req/s).
func (c LimitConfig) RatePerSecond() float64 {
	return float64(c.MaxRequests) / c.Window.Seconds()
}

// EffectiveBurst aplica o padrão de burst do token bucket.
func (c LimitConfig) EffectiveBurst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	b := int(math.Round(float64(c.MaxRequests) * 2))
	if b < 1 {
		b = 1
	}
	return b
}

// KindOrDefault devolve a estratégia configurada ou o padrão (sliding window).
func (c LimitConfig) KindOrDefault() StrategyKind {
	if c.Strategy == "" {
		return StrategySlidingWindow
	}
	return c.Strategy
}
