// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - TokenBucket: estratégia por chave usando golang.org/x/time/rate
//   - SlidingWindow: estratégia por chave contando eventos na janela móvel
//   - RedisStore / MemoryStore: store compartilhado de contadores e block-list
//   - RedisTelemetry: contadores best-effort de respostas lentas e 5xx
package infra
