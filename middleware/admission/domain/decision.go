package domain

import "time"

// Decision é o resultado de uma checagem de admissão.
type Decision struct {
	Allowed   bool
	Remaining int

	// ResetAfter estima quando a próxima unidade estará disponível
	// (ou quanto resta da janela corrente, quando permitido).
	ResetAfter time.Duration

	// Reason carrega a mensagem da camada que negou, quando houver.
	Reason string
}

// BlockEntry é um registro da block-list. Vive no store compartilhado e
// expira por TTL; o middleware nega com motivo e expiração sem consumir cota.
type BlockEntry struct {
	Key       string        `json:"key"`
	Reason    string        `json:"reason"`
	BlockedAt time.Time     `json:"blocked_at"`
	Duration  time.Duration `json:"duration"`
}

func (b BlockEntry) ExpiresAt() time.Time {
	return b.BlockedAt.Add(b.Duration)
}
