package application

import "admission-gateway/middleware/admission/domain"

// Nomes das camadas de limite, na ordem de avaliação. A primeira violação
// interrompe a avaliação (short-circuit).
const (
	LayerGlobal   = "global"
	LayerPath     = "path"
	LayerUser     = "user"
	LayerEndpoint = "endpoint"
)

// PathRule é a configuração específica de um caminho (camada 2).
type PathRule struct {
	Config domain.LimitConfig

	// Scope declara a chave do limite: "ip" (padrão) ou "user".
	// Anônimo em regra user-escopada degrada para IP.
	Scope string
}

// Layer é uma checagem planejada: o namespace (Type) e a chave no store,
// mais a configuração a comparar.
type Layer struct {
	Name   string
	Type   string
	Key    string
	Config domain.LimitConfig
}

// PlanInput agrega tudo que o plano de camadas precisa saber do request.
type PlanInput struct {
	Path     string
	IP       string
	Identity *domain.Identity // nil = anônimo

	Rule *PathRule // override do caminho, se houver

	Global      domain.LimitConfig
	RoleLimits  map[string]domain.LimitConfig
	UserDefault domain.LimitConfig
	Endpoint    domain.LimitConfig
}

// PlanLayers monta o plano do request:
//
//  1. teto global por IP (sempre — pega abuso espalhado por endpoints)
//  2. override do caminho, quando registrado, na chave que ele declarar
//  3. teto por usuário ciente de papel, quando autenticado
//  4. teto genérico por endpoint, apenas quando NÃO houve override em 2
func PlanLayers(in PlanInput) []Layer {
	layers := make([]Layer, 0, 4)

	layers = append(layers, Layer{
		Name:   LayerGlobal,
		Type:   "ip",
		Key:    in.IP,
		Config: in.Global,
	})

	if in.Rule != nil {
		key := in.IP
		if in.Rule.Scope == "user" && in.Identity != nil {
			key = in.Identity.Subject
		}
		layers = append(layers, Layer{
			Name:   LayerPath,
			Type:   "path",
			Key:    in.Path + ":" + key,
			Config: in.Rule.Config,
		})
	}

	if in.Identity != nil {
		cfg := in.UserDefault
		if rc, ok := in.RoleLimits[in.Identity.Role]; ok {
			cfg = rc
		}
		layers = append(layers, Layer{
			Name:   LayerUser,
			Type:   "user",
			Key:    in.Identity.Subject,
			Config: cfg,
		})
	}

	if in.Rule == nil {
		layers = append(layers, Layer{
			Name:   LayerEndpoint,
			Type:   "endpoint",
			Key:    in.Path + ":" + in.IP,
			Config: in.Endpoint,
		})
	}

	return layers
}
