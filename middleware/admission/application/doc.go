// Package application contém os casos de uso do controle de admissão:
// checagem distribuída de limites, block-list e o plano de camadas por
// request.
//
// Ele depende apenas do pacote domain (mais zap para registrar fail-open)
// e não conhece net/http.
package application
