package domain

import "errors"

var (
	// ErrInvalidConfig indica configuração rejeitada no setup (fatal).
	ErrInvalidConfig = errors.New("invalid limit configuration")

	// ErrBlocked sinaliza identificador presente na block-list.
	ErrBlocked = errors.New("identifier is blocked")

	// ErrStoreUnavailable embrulha falhas de infraestrutura do store
	// compartilhado. É resolvido pela política fail-open/fail-closed,
	// nunca derruba o pipeline de request.
	ErrStoreUnavailable = errors.New("admission store unavailable")

	// ErrRateLimited é o sinal explícito de throttling de um colaborador
	// externo (ex: HTTP 429). O controlador adaptativo reage a ele com
	// backoff imediato.
	ErrRateLimited = errors.New("rate limited by collaborator")
)

func IsBlockedError(err error) bool {
	return errors.Is(err, ErrBlocked)
}
