// utilitário pequeno para formatação rápida/consistente de valores numéricos
// em headers, sem puxar fmt para isso.

package admission

import "strconv"

func formatInt(v int) string { return strconv.Itoa(v) }
