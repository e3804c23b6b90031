package admission

import (
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/infra"
)

type ConcurrencyOptions struct {
	// MaxInFlight limita requests simultâneos; <= 0 desliga o middleware.
	MaxInFlight    int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita requests em voo. Sem vaga dentro do timeout,
// responde 503 com corpo estruturado, sem consumir cota de rate limit.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.MaxInFlight <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.MaxInFlight),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				writeJSON(w, http.StatusServiceUnavailable, errorBody{
					Error:   "too_many_in_flight",
					Message: "server is at capacity, try again shortly",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
