package domain

import (
	"context"
	"time"
)

// CounterStore é o contrato mínimo com o store remoto compartilhado.
//
// Incr é a única primitiva da qual a correção entre processos depende: deve
// incrementar atomicamente e, ao criar a chave, armar o TTL informado.
// TTL devolve o tempo restante da chave (<= 0 quando não existe ou não expira).
type CounterStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// TelemetryEvent registra um desfecho de request digno de nota
// (resposta lenta ou erro 5xx), agregado por endpoint.
type TelemetryEvent struct {
	Method      string
	Path        string
	Slow        bool
	ServerError bool
	At          time.Time
}

// TelemetryStore persiste contadores de telemetria.
//
// O middleware trata gravação como best-effort: falha é engolida e logada,
// nunca afeta a resposta primária.
type TelemetryStore interface {
	Record(ctx context.Context, ev TelemetryEvent) error
}
