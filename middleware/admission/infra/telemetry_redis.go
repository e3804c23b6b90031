package infra

import (
	"context"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisTelemetry agrega respostas lentas e erros 5xx por endpoint em hashes
// no Redis, com TTL limitado.
//
// Observação: cuidado com cardinalidade — Path entra cru no campo do hash;
// rotas com IDs embutidos podem explodir o número de campos.
type RedisTelemetry struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisTelemetryOption func(*RedisTelemetry)

func WithTelemetryPrefix(prefix string) RedisTelemetryOption {
	return func(s *RedisTelemetry) { s.prefix = strings.Trim(prefix, ":") }
}

func WithTelemetryTTL(d time.Duration) RedisTelemetryOption {
	return func(s *RedisTelemetry) { s.ttl = d }
}

func NewRedisTelemetry(rdb *redis.Client, opts ...RedisTelemetryOption) *RedisTelemetry {
	s := &RedisTelemetry{
		rdb:    rdb,
		prefix: "admission:telemetry",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisTelemetry) Record(ctx context.Context, ev domain.TelemetryEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if !ev.Slow && !ev.ServerError {
		return nil
	}

	endpoint := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if endpoint == "" {
		return nil
	}

	key := s.prefix + ":endpoint"

	pipe := s.rdb.Pipeline()
	if ev.Slow {
		pipe.HIncrBy(ctx, key, endpoint+":slow", 1)
	}
	if ev.ServerError {
		pipe.HIncrBy(ctx, key, endpoint+":server_error", 1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

var _ domain.TelemetryStore = (*RedisTelemetry)(nil)
