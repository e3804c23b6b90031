package outbound

import (
	"context"

	"admission-gateway/middleware/admission/domain"
)

// LimitedResolver aplica o limiter nomeado antes de consultar o verificador
// de credenciais externo, e reporta o desfecho para o feedback adaptativo.
type LimitedResolver struct {
	Registry *Registry
	Name     string
	Next     domain.IdentityResolver
}

func (l LimitedResolver) Resolve(ctx context.Context, bearer string) (domain.Identity, bool, error) {
	var (
		id domain.Identity
		ok bool
	)
	err := l.Registry.Do(ctx, l.Name, func() error {
		var err error
		id, ok, err = l.Next.Resolve(ctx, bearer)
		return err
	})
	return id, ok, err
}

var _ domain.IdentityResolver = LimitedResolver{}
