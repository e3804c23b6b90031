package domain

import "context"

// Identity é o resultado da verificação de credencial, feita por um
// colaborador externo. Este módulo nunca valida assinaturas.
type Identity struct {
	Subject string
	Role    string
}

// IdentityResolver resolve uma credencial bearer em identidade.
//
// Ausência (ok=false) não é erro. Falha do resolvedor degrada para
// checagens por IP: o pipeline trata o chamador como anônimo.
type IdentityResolver interface {
	Resolve(ctx context.Context, bearer string) (id Identity, ok bool, err error)
}
