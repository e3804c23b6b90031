package admission

import (
	"fmt"
	"os"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"gopkg.in/yaml.v2"
)

// Rules agrupa a superfície de configuração do middleware: overrides por
// caminho (camada 2) e as listas de isenção.
type Rules struct {
	Paths          map[string]application.PathRule
	ExemptPaths    []string
	ExemptPrefixes []string
}

// Exempt indica se o caminho dispensa todas as checagens (health checks,
// docs, estáticos).
func (rules Rules) Exempt(path string) bool {
	for _, p := range rules.ExemptPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range rules.ExemptPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RuleFor devolve o override do caminho ou nil.
func (rules Rules) RuleFor(path string) *application.PathRule {
	if rules.Paths == nil {
		return nil
	}
	rule, ok := rules.Paths[path]
	if !ok {
		return nil
	}
	return &rule
}

// Formato do arquivo YAML de regras:
//
//	exempt_paths: ["/health"]
//	exempt_prefixes: ["/static/"]
//	paths:
//	  /api/heavy:
//	    scope: ip
//	    max_requests: 5
//	    window_seconds: 300
//	    strategy: sliding_window
//	    message: "heavy endpoint, slow down"
type rulesFile struct {
	ExemptPaths    []string                `yaml:"exempt_paths"`
	ExemptPrefixes []string                `yaml:"exempt_prefixes"`
	Paths          map[string]pathRuleYAML `yaml:"paths"`
}

type pathRuleYAML struct {
	Scope         string `yaml:"scope"`
	MaxRequests   int    `yaml:"max_requests"`
	WindowSeconds int    `yaml:"window_seconds"`
	Strategy      string `yaml:"strategy"`
	Burst         int    `yaml:"burst"`
	Message       string `yaml:"message"`
}

// LoadRules lê e valida o arquivo de regras. Configuração inválida é fatal
// no setup, nunca descoberta em request.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := Rules{
		ExemptPaths:    file.ExemptPaths,
		ExemptPrefixes: file.ExemptPrefixes,
		Paths:          make(map[string]application.PathRule, len(file.Paths)),
	}

	for p, y := range file.Paths {
		scope := strings.ToLower(strings.TrimSpace(y.Scope))
		switch scope {
		case "":
			scope = "ip"
		case "ip", "user":
		default:
			return Rules{}, fmt.Errorf("%w: path %q: unknown scope %q", domain.ErrInvalidConfig, p, y.Scope)
		}

		cfg := domain.LimitConfig{
			MaxRequests: y.MaxRequests,
			Window:      time.Duration(y.WindowSeconds) * time.Second,
			Strategy:    domain.StrategyKind(strings.TrimSpace(y.Strategy)),
			Burst:       y.Burst,
			Message:     y.Message,
		}
		if err := cfg.Validate(); err != nil {
			return Rules{}, fmt.Errorf("path %q: %w", p, err)
		}

		rules.Paths[p] = application.PathRule{Config: cfg, Scope: scope}
	}

	return rules, nil
}
