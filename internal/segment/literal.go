package segment

import (
	"fmt"
	"math/big"
	"strings"

	"xdiff/internal/core"
)

// literal renders a single key value as a SQL literal. Strings are quoted
// and single quotes doubled; integers and big integers render as decimal
// text, which every supported dialect parses back to the same ordering.
func literal(v core.Value) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case int64:
		return fmt.Sprintf("%d", t)
	case *big.Int:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func literalList(k core.Key) string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = literal(v)
	}
	return strings.Join(parts, ", ")
}
