// Package admission fornece o middleware HTTP (net/http) de controle de
// admissão em camadas.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (checagem distribuída, plano de camadas,
//     block-list) sem net/http
//   - infra: implementações concretas (token bucket, sliding window, Redis,
//     memória), detalhes de infraestrutura
//   - admission (este pacote): middleware HTTP + extração de IP/credencial +
//     tradução para status/headers/corpo JSON
//
// Fluxo por request:
//
//  1. Caminho isento (health, docs, estáticos) → encaminha direto
//  2. Resolve o IP do cliente pela cadeia de headers de proxy
//  3. Block-list → nega com motivo e expiração, sem consumir cota
//  4. Resolve identidade (ausência/falha degrada para anônimo)
//  5. Avalia as camadas 1..4 com short-circuit na primeira violação
//  6. Encaminha e anota X-RateLimit-* por camada ativa, ou responde 429
//  7. Telemetria assíncrona de respostas lentas e 5xx (best-effort)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como ADMISSION_FAIL_POLICY, RULES_FILE e GLOBAL_IP_MAX.
package admission
