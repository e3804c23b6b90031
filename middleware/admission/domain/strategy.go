package domain

import "context"

// Key identifica o sujeito de um limite (IP, usuário, nome de serviço).
type Key string

// Strategy decide admissão por chave, em processo.
//
// Acquire bloqueia até haver capacidade (ou o ctx encerrar) e então consome
// uma unidade; cancelamento durante a espera não pode corromper os contadores
// da chave. TryAcquire decide imediatamente, sem esperar; quando nega,
// Decision.ResetAfter informa quanto esperar antes de tentar de novo.
//
// O estado (tokens, timestamps) de uma chave é atualizado sob disciplina de
// escritor único; chaves distintas não compartilham lock de espera.
type Strategy interface {
	Acquire(ctx context.Context, key Key) error
	TryAcquire(key Key) Decision

	// SetRate reconfigura a taxa média (req/s) preservando o estado por
	// chave. Usado pelo controlador adaptativo.
	SetRate(rps float64)

	// Rate devolve a taxa média atual (req/s).
	Rate() float64

	// Reset descarta todo o estado por chave, como se recém-construído.
	Reset()
}
