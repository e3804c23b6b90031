package application

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"go.uber.org/zap"
)

// FailPolicy define o comportamento quando o store compartilhado falha.
// A escolha é explícita e observável (logada a cada uso), nunca um default
// silencioso.
type FailPolicy string

const (
	FailOpen   FailPolicy = "open"
	FailClosed FailPolicy = "closed"
)

// Service é o serviço de admissão distribuído: contadores de janela e
// block-list vivem no store remoto compartilhado.
//
// O serviço não guarda estado autoritativo entre requests; a correção entre
// processos vem exclusivamente do Incr atômico do store.
type Service struct {
	store  domain.CounterStore
	policy FailPolicy
	prefix string
	logger *zap.Logger

	// serializa leitura-modificação-escrita do estado de token bucket
	tbMu sync.Mutex

	now func() time.Time
}

type ServiceOption func(*Service)

func WithPrefix(prefix string) ServiceOption {
	return func(s *Service) { s.prefix = strings.Trim(prefix, ":") }
}

func WithFailPolicy(p FailPolicy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithServiceClock troca a fonte de tempo (testes).
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store domain.CounterStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  store,
		policy: FailOpen,
		prefix: "admission",
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsBlocked consulta a block-list. Entrada não expirada volta para o
// middleware negar com motivo e expiração.
func (s *Service) IsBlocked(ctx context.Context, ip string) (*domain.BlockEntry, error) {
	raw, ok, err := s.store.Get(ctx, s.blockKey(ip))
	if err != nil {
		if s.policy == FailOpen {
			s.logger.Warn("block-list unavailable, failing open", zap.String("ip", ip), zap.Error(err))
			return nil, nil
		}
		s.logger.Error("block-list unavailable, failing closed", zap.String("ip", ip), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var ent domain.BlockEntry
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		// registro corrompido não deve negar tráfego para sempre
		s.logger.Warn("dropping corrupted block entry", zap.String("ip", ip), zap.Error(err))
		_ = s.store.Del(ctx, s.blockKey(ip))
		return nil, nil
	}
	return &ent, nil
}

// Block insere o IP na block-list por `d`. A expiração fica por conta do TTL
// do store.
func (s *Service) Block(ctx context.Context, ip, reason string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: block duration must be > 0", domain.ErrInvalidConfig)
	}

	ent := domain.BlockEntry{
		Key:       ip,
		Reason:    reason,
		BlockedAt: s.now(),
		Duration:  d,
	}
	raw, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.blockKey(ip), string(raw), d)
}

func (s *Service) Unblock(ctx context.Context, ip string) error {
	return s.store.Del(ctx, s.blockKey(ip))
}

// CheckLimit avalia um limite para (tipo, chave) contra o store compartilhado
// e devolve a decisão com metadados de remaining/reset.
func (s *Service) CheckLimit(ctx context.Context, limitType, key string, cfg domain.LimitConfig) (domain.Decision, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Decision{}, err
	}

	if cfg.KindOrDefault() == domain.StrategyTokenBucket {
		return s.checkTokenBucket(ctx, limitType, key, cfg)
	}
	return s.checkWindow(ctx, limitType, key, cfg)
}

func (s *Service) checkWindow(ctx context.Context, limitType, key string, cfg domain.LimitConfig) (domain.Decision, error) {
	k := s.counterKey(limitType, key)

	n, err := s.store.Incr(ctx, k, cfg.Window)
	if err != nil {
		return s.resolveFailure("window counter", err)
	}

	reset, terr := s.store.TTL(ctx, k)
	if terr != nil || reset <= 0 {
		reset = cfg.Window
	}

	remaining := cfg.MaxRequests - int(n)
	if remaining < 0 {
		remaining = 0
	}

	if int(n) > cfg.MaxRequests {
		return domain.Decision{Allowed: false, Remaining: 0, ResetAfter: reset, Reason: cfg.Message}, nil
	}
	return domain.Decision{Allowed: true, Remaining: remaining, ResetAfter: reset}, nil
}

// tokenState é o estado serializado de um bucket no store compartilhado.
type tokenState struct {
	Tokens float64   `json:"tokens"`
	Last   time.Time `json:"last"`
}

// checkTokenBucket mantém o estado do bucket no store via Get/Set. A
// serialização é por processo (tbMu); entre processos o contrato assume
// apenas o Incr atômico, então este caminho tolera corridas raras em troca
// de não exigir scripts no store.
func (s *Service) checkTokenBucket(ctx context.Context, limitType, key string, cfg domain.LimitConfig) (domain.Decision, error) {
	s.tbMu.Lock()
	defer s.tbMu.Unlock()

	k := s.tokenKey(limitType, key)
	capacity := float64(cfg.EffectiveBurst())
	rps := cfg.RatePerSecond()
	now := s.now()

	st := tokenState{Tokens: capacity, Last: now}
	raw, ok, err := s.store.Get(ctx, k)
	if err != nil {
		return s.resolveFailure("token state", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			st = tokenState{Tokens: capacity, Last: now}
		} else {
			elapsed := now.Sub(st.Last).Seconds()
			st.Tokens = math.Min(capacity, st.Tokens+elapsed*rps)
		}
	}
	st.Last = now

	var dec domain.Decision
	if st.Tokens >= 1 {
		st.Tokens--
		dec = domain.Decision{Allowed: true, Remaining: int(st.Tokens)}
	} else {
		wait := time.Duration((1 - st.Tokens) / rps * float64(time.Second))
		dec = domain.Decision{Allowed: false, ResetAfter: wait, Reason: cfg.Message}
	}

	buf, err := json.Marshal(st)
	if err != nil {
		return dec, err
	}

	// TTL cobre o tempo de reencher o bucket; estado expirado equivale a
	// bucket cheio.
	ttl := time.Duration(capacity / rps * float64(time.Second))
	if ttl < cfg.Window {
		ttl = cfg.Window
	}
	if err := s.store.Set(ctx, k, string(buf), ttl); err != nil {
		return s.resolveFailure("token state", err)
	}
	return dec, nil
}

// StatsSnapshot é uma leitura pontual de um contador de janela.
type StatsSnapshot struct {
	Count      int64
	ResetAfter time.Duration
}

// Stats lê o contador sem consumir cota.
func (s *Service) Stats(ctx context.Context, limitType, key string) (StatsSnapshot, error) {
	k := s.counterKey(limitType, key)

	raw, ok, err := s.store.Get(ctx, k)
	if err != nil {
		return StatsSnapshot{}, err
	}

	var snap StatsSnapshot
	if ok {
		snap.Count, _ = strconv.ParseInt(raw, 10, 64)
	}
	if ttl, err := s.store.TTL(ctx, k); err == nil && ttl > 0 {
		snap.ResetAfter = ttl
	}
	return snap, nil
}

// resolveFailure aplica a política configurada a uma falha do store.
// Fail-open permite e loga; fail-closed propaga o erro para o chamador
// negar — nunca derruba o pipeline.
func (s *Service) resolveFailure(op string, err error) (domain.Decision, error) {
	if s.policy == FailOpen {
		s.logger.Warn("admission store unavailable, failing open", zap.String("op", op), zap.Error(err))
		return domain.Decision{Allowed: true}, nil
	}
	s.logger.Error("admission store unavailable, failing closed", zap.String("op", op), zap.Error(err))
	return domain.Decision{}, err
}

func (s *Service) counterKey(limitType, key string) string {
	return s.prefix + ":" + strings.ToLower(strings.TrimSpace(limitType)) + ":" + strings.TrimSpace(key)
}

func (s *Service) tokenKey(limitType, key string) string {
	return s.prefix + ":tb:" + strings.ToLower(strings.TrimSpace(limitType)) + ":" + strings.TrimSpace(key)
}

func (s *Service) blockKey(ip string) string {
	return s.prefix + ":block:ip:" + strings.TrimSpace(ip)
}
