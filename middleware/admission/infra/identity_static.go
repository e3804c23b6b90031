package infra

import (
	"context"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// StaticResolver resolve credenciais a partir de um mapa fixo token ->
// identidade. Serve para desenvolvimento e testes; em produção a verificação
// fica em um serviço externo.
type StaticResolver struct {
	tokens map[string]domain.Identity
}

func NewStaticResolver(tokens map[string]domain.Identity) *StaticResolver {
	if tokens == nil {
		tokens = make(map[string]domain.Identity)
	}
	return &StaticResolver{tokens: tokens}
}

func (r *StaticResolver) Resolve(_ context.Context, bearer string) (domain.Identity, bool, error) {
	id, ok := r.tokens[strings.TrimSpace(bearer)]
	return id, ok, nil
}

var _ domain.IdentityResolver = (*StaticResolver)(nil)
