package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"admission-gateway/logging"
	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
	"admission-gateway/outbound"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env é opcional; ausência não é erro
	_ = godotenv.Load()

	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	defer func() { _ = logger.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		store     domain.CounterStore
		telemetry domain.TelemetryStore
	)
	if cfg.storeKind == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			logger.Fatal("redis ping error", zap.Error(err))
		}

		store = infra.NewRedisStore(rdb)
		if cfg.telemetryEnabled {
			telemetry = infra.NewRedisTelemetry(rdb, infra.WithTelemetryTTL(cfg.telemetryTTL))
		}
	} else {
		// modo de desenvolvimento: contadores locais, sem coordenação
		// entre processos
		store = infra.NewMemoryStore()
	}

	svc := application.NewService(store, logger,
		application.WithPrefix(cfg.prefix),
		application.WithFailPolicy(cfg.failPolicy),
	)

	rules := admission.Rules{}
	if cfg.rulesFile != "" {
		rules, err = admission.LoadRules(cfg.rulesFile)
		if err != nil {
			logger.Fatal("rules file error", zap.Error(err))
		}
	}

	// o gateway também é cliente de um colaborador externo: o verificador de
	// credenciais passa pelo registry de saída, com backoff adaptativo
	registry := outbound.NewRegistry(logger)
	var resolver domain.IdentityResolver
	if len(cfg.identityTokens) > 0 {
		if err := registry.AddService("identity", cfg.identityRate, outbound.ServiceOptions{Adaptive: true}); err != nil {
			logger.Fatal("identity limiter error", zap.Error(err))
		}
		resolver = outbound.LimitedResolver{
			Registry: registry,
			Name:     "identity",
			Next:     infra.NewStaticResolver(cfg.identityTokens),
		}
	}

	h := http.Handler(proxy)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		MaxInFlight:    cfg.concurrencyMax,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = admission.Middleware(admission.Options{
		Service:           svc,
		Identity:          resolver,
		Telemetry:         telemetry,
		Rules:             rules,
		Global:            cfg.globalLimit,
		UserDefault:       cfg.userLimit,
		Endpoint:          cfg.endpointLimit,
		TrustProxyHeaders: cfg.trustProxyHeaders,
		SlowThreshold:     cfg.slowThreshold,
		Logger:            logger,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("store", cfg.storeKind),
		zap.String("fail_policy", string(cfg.failPolicy)),
		zap.Int("path_rules", len(rules.Paths)),
		zap.Bool("identity", resolver != nil),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

type config struct {
	listenAddr  string
	upstreamURL string

	storeKind     string
	redisAddr     string
	redisPassword string
	redisDB       int
	prefix        string
	failPolicy    application.FailPolicy

	rulesFile         string
	trustProxyHeaders bool
	slowThreshold     time.Duration

	globalLimit   domain.LimitConfig
	userLimit     domain.LimitConfig
	endpointLimit domain.LimitConfig

	telemetryEnabled bool
	telemetryTTL     time.Duration

	concurrencyMax     int
	concurrencyTimeout time.Duration

	identityTokens map[string]domain.Identity
	identityRate   float64
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.storeKind = strings.ToLower(getenvDefault("ADMISSION_STORE", "memory"))
	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.prefix = getenvDefault("ADMISSION_PREFIX", "admission")

	switch strings.ToLower(getenvDefault("ADMISSION_FAIL_POLICY", "open")) {
	case "open":
		cfg.failPolicy = application.FailOpen
	case "closed":
		cfg.failPolicy = application.FailClosed
	default:
		return config{}, errors.New("ADMISSION_FAIL_POLICY must be open or closed")
	}

	cfg.rulesFile = os.Getenv("RULES_FILE")
	cfg.trustProxyHeaders = getenvBoolDefault("TRUST_PROXY_HEADERS", true)
	cfg.slowThreshold = getenvDurationDefault("SLOW_THRESHOLD", 5*time.Second)

	cfg.globalLimit = domain.LimitConfig{
		MaxRequests: getenvIntDefault("GLOBAL_IP_MAX", 1000),
		Window:      getenvDurationDefault("GLOBAL_IP_WINDOW", time.Hour),
	}
	cfg.userLimit = domain.LimitConfig{
		MaxRequests: getenvIntDefault("USER_MAX", 500),
		Window:      getenvDurationDefault("USER_WINDOW", time.Hour),
	}
	cfg.endpointLimit = domain.LimitConfig{
		MaxRequests: getenvIntDefault("ENDPOINT_MAX", 300),
		Window:      getenvDurationDefault("ENDPOINT_WINDOW", time.Hour),
	}

	cfg.telemetryEnabled = getenvBoolDefault("TELEMETRY_ENABLED", true)
	cfg.telemetryTTL = getenvDurationDefault("TELEMETRY_TTL", 24*time.Hour)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.identityTokens = parseIdentityTokens(os.Getenv("IDENTITY_TOKENS"))
	cfg.identityRate = getenvFloatDefault("IDENTITY_RATE", 50)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.storeKind != "memory" && cfg.storeKind != "redis" {
		return config{}, errors.New("ADMISSION_STORE must be memory or redis")
	}
	for _, lim := range []domain.LimitConfig{cfg.globalLimit, cfg.userLimit, cfg.endpointLimit} {
		if err := lim.Validate(); err != nil {
			return config{}, err
		}
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.identityRate <= 0 {
		return config{}, errors.New("IDENTITY_RATE must be > 0")
	}
	return cfg, nil
}

// parseIdentityTokens lê "token=subject:role,token2=subject2:role2".
func parseIdentityTokens(raw string) map[string]domain.Identity {
	out := make(map[string]domain.Identity)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, rest, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		subject, role, _ := strings.Cut(rest, ":")
		out[strings.TrimSpace(token)] = domain.Identity{
			Subject: strings.TrimSpace(subject),
			Role:    strings.TrimSpace(role),
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
