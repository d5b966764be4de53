package diff

import (
	"math/big"
	"strconv"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/segment"
)

func quoted(s *segment.TableSegment) string {
	return s.DB.Dialect().RenderQuoted(s.KeyColumns[0])
}

func tableRef(s *segment.TableSegment) string {
	d := s.DB.Dialect()
	if s.Schema == "" {
		return d.RenderQuoted(s.Table)
	}
	return d.RenderQuoted(s.Schema) + "." + d.RenderQuoted(s.Table)
}

func toInt64(v core.Value) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case *big.Int:
		return t.Int64()
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		return n
	default:
		return 0
	}
}

func minValue(a, b core.Value) core.Value {
	if (core.Key{a}).Compare(core.Key{b}) <= 0 {
		return a
	}
	return b
}

func maxValue(a, b core.Value) core.Value {
	if (core.Key{a}).Compare(core.Key{b}) >= 0 {
		return a
	}
	return b
}

// incrementKey returns the smallest value strictly greater than v usable
// as a half-open upper bound. Exact for integers; for strings it appends
// a byte no valid value is expected to contain, which is exact as long as
// the key domain doesn't itself contain 0xFF-terminated strings crafted
// to defeat it.
func incrementKey(v core.Value) core.Value {
	switch t := v.(type) {
	case int64:
		return t + 1
	case *big.Int:
		return new(big.Int).Add(t, big.NewInt(1))
	case string:
		return t + "\xff"
	default:
		return v
	}
}
