package admission

import (
	"context"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// Padrões das camadas quando o chamador não configura nada.
var (
	// camada 1: teto alto por IP, atravessando endpoints
	DefaultGlobalLimit = domain.LimitConfig{MaxRequests: 1000, Window: time.Hour}
	// camada 3: teto por usuário autenticado sem papel específico
	DefaultUserLimit = domain.LimitConfig{MaxRequests: 500, Window: time.Hour}
	// camada 4: teto genérico por endpoint, só sem override de caminho
	DefaultEndpointLimit = domain.LimitConfig{MaxRequests: 300, Window: time.Hour}
)

const defaultSlowThreshold = 5 * time.Second

type Options struct {
	Service *application.Service

	// Identity é o colaborador externo de verificação de credencial.
	// Nil ou falho degrada para checagens por IP.
	Identity domain.IdentityResolver

	// Telemetry recebe eventos de resposta lenta/5xx (best-effort).
	Telemetry domain.TelemetryStore

	// Rules carrega overrides por caminho e a lista de isenções.
	Rules Rules

	Global      domain.LimitConfig
	UserDefault domain.LimitConfig
	RoleLimits  map[string]domain.LimitConfig
	Endpoint    domain.LimitConfig

	TrustProxyHeaders bool
	SlowThreshold     time.Duration
	Logger            *zap.Logger
}

type layerOutcome struct {
	layer    application.Layer
	decision domain.Decision
}

// Middleware compõe as checagens de admissão por request, com short-circuit
// na primeira violação. Ver doc.go para a ordem completa.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = defaultSlowThreshold
	}
	if opts.Global.MaxRequests == 0 {
		opts.Global = DefaultGlobalLimit
	}
	if opts.UserDefault.MaxRequests == 0 {
		opts.UserDefault = DefaultUserLimit
	}
	if opts.Endpoint.MaxRequests == 0 {
		opts.Endpoint = DefaultEndpointLimit
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Rules.Exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r, opts.TrustProxyHeaders)

			ent, err := opts.Service.IsBlocked(r.Context(), ip)
			if err != nil {
				respondUnavailable(w)
				return
			}
			if ent != nil {
				respondBlocked(w, ent)
				return
			}

			identity := resolveIdentity(r, opts.Identity, opts.Logger)

			plan := application.PlanLayers(application.PlanInput{
				Path:        r.URL.Path,
				IP:          ip,
				Identity:    identity,
				Rule:        opts.Rules.RuleFor(r.URL.Path),
				Global:      opts.Global,
				RoleLimits:  opts.RoleLimits,
				UserDefault: opts.UserDefault,
				Endpoint:    opts.Endpoint,
			})

			outcomes := make([]layerOutcome, 0, len(plan))
			for _, layer := range plan {
				dec, err := opts.Service.CheckLimit(r.Context(), layer.Type, layer.Key, layer.Config)
				if err != nil {
					respondUnavailable(w)
					return
				}
				if !dec.Allowed {
					respondRejected(w, dec)
					return
				}
				outcomes = append(outcomes, layerOutcome{layer: layer, decision: dec})
			}

			for _, out := range outcomes {
				suffix := headerSuffix(out.layer.Name)
				w.Header().Set("X-RateLimit-Limit-"+suffix, formatInt(out.layer.Config.MaxRequests))
				w.Header().Set("X-RateLimit-Remaining-"+suffix, formatInt(out.decision.Remaining))
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			slow := elapsed > opts.SlowThreshold
			serverErr := rec.status >= 500
			if opts.Telemetry != nil && (slow || serverErr) {
				ev := domain.TelemetryEvent{
					Method:      r.Method,
					Path:        r.URL.Path,
					Slow:        slow,
					ServerError: serverErr,
					At:          time.Now(),
				}
				// fire-and-forget: telemetria nunca segura nem derruba a resposta
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := opts.Telemetry.Record(ctx, ev); err != nil {
						opts.Logger.Debug("telemetry record failed", zap.Error(err))
					}
				}()
			}
		})
	}
}

// resolveIdentity extrai a credencial bearer e consulta o verificador
// externo. Nunca propaga falha: ausência e erro viram anônimo.
func resolveIdentity(r *http.Request, resolver domain.IdentityResolver, logger *zap.Logger) *domain.Identity {
	if resolver == nil {
		return nil
	}

	bearer := bearerToken(r)
	if bearer == "" {
		return nil
	}

	id, ok, err := resolver.Resolve(r.Context(), bearer)
	if err != nil {
		logger.Debug("identity resolution failed, treating as anonymous", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &id
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func headerSuffix(layerName string) string {
	switch layerName {
	case application.LayerGlobal:
		return "Global"
	case application.LayerPath:
		return "Path"
	case application.LayerUser:
		return "User"
	case application.LayerEndpoint:
		return "Endpoint"
	}
	return "Unknown"
}

// statusRecorder captura o status escrito pelo próximo handler para a
// telemetria de 5xx.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
