// Package outbound gerencia limiters nomeados para chamadas de saída a APIs
// de terceiros.
//
// Um colaborador adquire do Registry antes de cada chamada externa e reporta
// o desfecho depois; serviços marcados como adaptativos reajustam a taxa a
// partir desse feedback (backoff imediato em throttling explícito,
// recuperação lenta após sequência de sucessos).
//
// O subsistema de saída não compartilha lock com o de entrada: são domínios
// de concorrência independentes, chaveados por nome de serviço.
package outbound
