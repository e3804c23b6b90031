package outbound

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrategy registra as taxas aplicadas, sem limitar nada.
type fakeStrategy struct {
	rate     float64
	setCalls []float64
	resets   int
}

func (f *fakeStrategy) Acquire(ctx context.Context, key domain.Key) error { return nil }
func (f *fakeStrategy) TryAcquire(key domain.Key) domain.Decision {
	return domain.Decision{Allowed: true}
}
func (f *fakeStrategy) SetRate(rps float64) {
	f.rate = rps
	f.setCalls = append(f.setCalls, rps)
}
func (f *fakeStrategy) Rate() float64 { return f.rate }
func (f *fakeStrategy) Reset()        { f.resets++ }

func newAdaptive(t *testing.T, initial float64, cfg AdaptiveConfig) (*AdaptiveController, *fakeStrategy, *time.Time) {
	t.Helper()

	cur := time.Now()
	cfg.Now = func() time.Time { return cur }

	fake := &fakeStrategy{rate: initial}
	ad, err := NewAdaptiveController(fake, cfg)
	require.NoError(t, err)
	return ad, fake, &cur
}

func TestAdaptive_ConfigValidation(t *testing.T) {
	_, err := NewAdaptiveController(nil, AdaptiveConfig{MinRate: 1, MaxRate: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	fake := &fakeStrategy{rate: 5}

	_, err = NewAdaptiveController(fake, AdaptiveConfig{MinRate: 1, MaxRate: 10, BackoffFactor: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewAdaptiveController(fake, AdaptiveConfig{MinRate: 1, MaxRate: 10, RecoveryFactor: 0.9})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewAdaptiveController(fake, AdaptiveConfig{MinRate: 10, MaxRate: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestAdaptive_InitialRateClampedToCorridor(t *testing.T) {
	ad, fake, _ := newAdaptive(t, 100, AdaptiveConfig{MinRate: 1, MaxRate: 10})

	assert.Equal(t, 10.0, ad.Rate())
	assert.Equal(t, 10.0, fake.rate)
}

func TestAdaptive_RateLimitErrorBacksOffImmediately(t *testing.T) {
	ad, fake, _ := newAdaptive(t, 8, AdaptiveConfig{MinRate: 1, MaxRate: 10, BackoffFactor: 0.5})

	ad.ReportRateLimitError()
	assert.Equal(t, 4.0, ad.Rate())

	ad.ReportRateLimitError()
	ad.ReportRateLimitError()
	ad.ReportRateLimitError()
	assert.Equal(t, 1.0, ad.Rate(), "backoff floors at MinRate")
	assert.Equal(t, 1.0, fake.rate)
}

func TestAdaptive_RecoveryNeedsStreakAndCooldown(t *testing.T) {
	ad, _, cur := newAdaptive(t, 5, AdaptiveConfig{
		MinRate:           1,
		MaxRate:           20,
		RecoveryFactor:    2,
		RecoveryThreshold: 3,
		Cooldown:          30 * time.Second,
	})

	// lastAdjust zerado: o primeiro streak completo já passou do cooldown
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 5.0, ad.Rate(), "below the streak threshold nothing changes")

	ad.ReportSuccess()
	assert.Equal(t, 10.0, ad.Rate())

	// streak completo de novo, mas dentro do cooldown
	ad.ReportSuccess()
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 10.0, ad.Rate(), "cooldown gates back-to-back recoveries")

	*cur = cur.Add(31 * time.Second)
	ad.ReportSuccess()
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 20.0, ad.Rate())

	// o teto segura as recuperações seguintes
	*cur = cur.Add(31 * time.Second)
	ad.ReportSuccess()
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 20.0, ad.Rate(), "recovery caps at MaxRate")
}

func TestAdaptive_RateLimitErrorResetsStreakAndCooldownGate(t *testing.T) {
	ad, _, cur := newAdaptive(t, 8, AdaptiveConfig{
		MinRate:           1,
		MaxRate:           10,
		BackoffFactor:     0.5,
		RecoveryFactor:    2,
		RecoveryThreshold: 2,
		Cooldown:          30 * time.Second,
	})

	ad.ReportSuccess()
	ad.ReportRateLimitError()
	assert.Equal(t, 4.0, ad.Rate())

	// streak recomeçou do zero e o backoff rearmou o cooldown
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 4.0, ad.Rate())

	*cur = cur.Add(31 * time.Second)
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 8.0, ad.Rate())
}

func TestAdaptive_GenericErrorOnlyBreaksStreak(t *testing.T) {
	ad, _, cur := newAdaptive(t, 5, AdaptiveConfig{
		MinRate:           1,
		MaxRate:           20,
		RecoveryFactor:    2,
		RecoveryThreshold: 3,
		Cooldown:          time.Second,
	})
	*cur = cur.Add(2 * time.Second)

	ad.ReportSuccess()
	ad.ReportSuccess()
	ad.ReportGenericError()
	assert.Equal(t, 5.0, ad.Rate(), "generic failure never touches the rate")

	// a sequência precisa recomeçar inteira
	ad.ReportSuccess()
	ad.ReportSuccess()
	assert.Equal(t, 5.0, ad.Rate())
	ad.ReportSuccess()
	assert.Equal(t, 10.0, ad.Rate())
}

func TestAdaptive_SetRateRespectsCorridor(t *testing.T) {
	ad, fake, _ := newAdaptive(t, 5, AdaptiveConfig{MinRate: 2, MaxRate: 10})

	ad.SetRate(100)
	assert.Equal(t, 10.0, ad.Rate())

	ad.SetRate(0.1)
	assert.Equal(t, 2.0, ad.Rate())
	assert.Equal(t, 2.0, fake.rate)
}

func TestAdaptive_ResetClearsCountersKeepsRate(t *testing.T) {
	ad, fake, _ := newAdaptive(t, 8, AdaptiveConfig{MinRate: 1, MaxRate: 10, BackoffFactor: 0.5})

	ad.ReportRateLimitError()
	require.Equal(t, 4.0, ad.Rate())

	ad.Reset()
	assert.Equal(t, 4.0, ad.Rate(), "reset keeps the adjusted rate")
	assert.Equal(t, 1, fake.resets)
}
