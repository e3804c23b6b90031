package application

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClockedService(t *testing.T, opts ...ServiceOption) (*Service, *time.Time) {
	t.Helper()

	cur := time.Now()
	clock := func() time.Time { return cur }

	store := infra.NewMemoryStore(infra.WithMemoryClock(clock))
	opts = append([]ServiceOption{WithServiceClock(clock)}, opts...)
	return NewService(store, zap.NewNop(), opts...), &cur
}

func TestService_CheckLimit_WindowCountdown(t *testing.T) {
	svc, cur := newClockedService(t)
	ctx := context.Background()
	cfg := domain.LimitConfig{MaxRequests: 5, Window: 300 * time.Second, Strategy: domain.StrategySlidingWindow}

	for i, want := range []int{4, 3, 2, 1, 0} {
		dec, err := svc.CheckLimit(ctx, "ip", "1.2.3.4", cfg)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, want, dec.Remaining, "remaining after request %d", i+1)
	}

	*cur = cur.Add(1 * time.Second)

	dec, err := svc.CheckLimit(ctx, "ip", "1.2.3.4", cfg)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.Equal(t, 299*time.Second, dec.ResetAfter, "reset counts from the first event of the window")
}

func TestService_CheckLimit_WindowExpiresAndRestarts(t *testing.T) {
	svc, cur := newClockedService(t)
	ctx := context.Background()
	cfg := domain.LimitConfig{MaxRequests: 1, Window: 10 * time.Second}

	dec, err := svc.CheckLimit(ctx, "ip", "k", cfg)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = svc.CheckLimit(ctx, "ip", "k", cfg)
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	*cur = cur.Add(11 * time.Second)

	dec, err = svc.CheckLimit(ctx, "ip", "k", cfg)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "a fresh window should admit again")
	assert.Equal(t, 0, dec.Remaining)
}

func TestService_CheckLimit_TokenBucketInSharedStore(t *testing.T) {
	svc, cur := newClockedService(t)
	ctx := context.Background()
	// 10 por 10s = 1/s, burst explícito de 3
	cfg := domain.LimitConfig{MaxRequests: 10, Window: 10 * time.Second, Strategy: domain.StrategyTokenBucket, Burst: 3}

	for i := 0; i < 3; i++ {
		dec, err := svc.CheckLimit(ctx, "svc", "ext-api", cfg)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d within burst", i+1)
	}

	dec, err := svc.CheckLimit(ctx, "svc", "ext-api", cfg)
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Equal(t, time.Second, dec.ResetAfter, "1 token at 1/s takes 1s")

	*cur = cur.Add(time.Second)

	dec, err = svc.CheckLimit(ctx, "svc", "ext-api", cfg)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "refill should admit after the wait")
}

func TestService_BlockLifecycle(t *testing.T) {
	svc, cur := newClockedService(t)
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, "9.9.9.9", "abuse detected", 3600*time.Second))

	ent, err := svc.IsBlocked(ctx, "9.9.9.9")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, "abuse detected", ent.Reason)
	// time.Time perde o relógio monotônico no round-trip JSON; compara com Equal
	assert.True(t, ent.ExpiresAt().Equal(cur.Add(3600*time.Second)))

	// dentro da duração continua bloqueado
	*cur = cur.Add(3599 * time.Second)
	ent, err = svc.IsBlocked(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.NotNil(t, ent)

	// depois da duração o TTL do store libera
	*cur = cur.Add(2 * time.Second)
	ent, err = svc.IsBlocked(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.Nil(t, ent)
}

func TestService_Unblock(t *testing.T) {
	svc, _ := newClockedService(t)
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, "9.9.9.9", "abuse", time.Hour))
	require.NoError(t, svc.Unblock(ctx, "9.9.9.9"))

	ent, err := svc.IsBlocked(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.Nil(t, ent)
}

func TestService_BlockRejectsNonPositiveDuration(t *testing.T) {
	svc, _ := newClockedService(t)

	err := svc.Block(context.Background(), "9.9.9.9", "abuse", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestService_CheckLimit_RejectsInvalidConfig(t *testing.T) {
	svc, _ := newClockedService(t)

	_, err := svc.CheckLimit(context.Background(), "ip", "k", domain.LimitConfig{MaxRequests: 0, Window: time.Second})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestService_Stats(t *testing.T) {
	svc, _ := newClockedService(t)
	ctx := context.Background()
	cfg := domain.LimitConfig{MaxRequests: 10, Window: time.Minute}

	for i := 0; i < 3; i++ {
		_, err := svc.CheckLimit(ctx, "ip", "k", cfg)
		require.NoError(t, err)
	}

	snap, err := svc.Stats(ctx, "ip", "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, time.Minute, snap.ResetAfter)
}

// failingStore simula o store compartilhado fora do ar.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, domain.ErrStoreUnavailable
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return domain.ErrStoreUnavailable
}
func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, domain.ErrStoreUnavailable
}
func (failingStore) Del(context.Context, string) error { return domain.ErrStoreUnavailable }
func (failingStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, domain.ErrStoreUnavailable
}

func TestService_FailOpenAdmitsOnStoreFailure(t *testing.T) {
	svc := NewService(failingStore{}, zap.NewNop(), WithFailPolicy(FailOpen))
	ctx := context.Background()

	dec, err := svc.CheckLimit(ctx, "ip", "k", domain.LimitConfig{MaxRequests: 1, Window: time.Second})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	ent, err := svc.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, ent)
}

func TestService_FailClosedPropagatesStoreFailure(t *testing.T) {
	svc := NewService(failingStore{}, zap.NewNop(), WithFailPolicy(FailClosed))
	ctx := context.Background()

	_, err := svc.CheckLimit(ctx, "ip", "k", domain.LimitConfig{MaxRequests: 1, Window: time.Second})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.IsBlocked(ctx, "1.2.3.4")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
