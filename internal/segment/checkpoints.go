package segment

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"xdiff/internal/core"
)

// ChooseCheckpoints returns n-1 interior key values partitioning the
// segment into n roughly equal sub-segments, strictly increasing and
// lying inside [MinKey, MaxKey). For a single numeric key column with
// known bounds it computes them arithmetically; otherwise it samples them
// with a window-function query, always including an explicit ORDER BY
// since §9 notes OFFSET/LIMIT fallbacks are non-deterministic without one.
func (s *TableSegment) ChooseCheckpoints(ctx context.Context, n int) ([]Key, error) {
	if n < 2 {
		return nil, fmt.Errorf("segment: bisection factor must be >= 2, got %d", n)
	}
	if len(s.KeyColumns) == 1 && s.Bounded() {
		if big0, big1, ok := asBigInts(s.MinKey[0], s.MaxKey[0]); ok {
			return dedupe(arithmeticCheckpoints(big0, big1, n)), nil
		}
	}
	return s.sampledCheckpoints(ctx, n)
}

func asBigInts(minV, maxV core.Value) (*big.Int, *big.Int, bool) {
	toBig := func(v core.Value) (*big.Int, bool) {
		switch t := v.(type) {
		case int64:
			return big.NewInt(t), true
		case *big.Int:
			return t, true
		default:
			return nil, false
		}
	}
	a, ok1 := toBig(minV)
	b, ok2 := toBig(maxV)
	return a, b, ok1 && ok2
}

// arithmeticCheckpoints computes min + i*(max-min)/n for i in 1..n-1.
func arithmeticCheckpoints(min, max *big.Int, n int) []Key {
	span := new(big.Int).Sub(max, min)
	out := make([]Key, 0, n-1)
	for i := 1; i < n; i++ {
		step := new(big.Int).Mul(span, big.NewInt(int64(i)))
		step.Div(step, big.NewInt(int64(n)))
		cp := new(big.Int).Add(min, step)
		out = append(out, Key{int64OrBig(cp)})
	}
	return out
}

func int64OrBig(b *big.Int) core.Value {
	if b.IsInt64() {
		return b.Int64()
	}
	return b
}

// dedupe collapses consecutive equal checkpoints so every child segment
// remains non-empty (§4.4's tie-break rule for sparse key domains).
func dedupe(keys []Key) []Key {
	out := keys[:0:0]
	for i, k := range keys {
		if i > 0 && k.Compare(out[len(out)-1]) == 0 {
			continue
		}
		out = append(out, k)
	}
	return out
}

// sampledCheckpoints issues a window-function query retrieving n-1 evenly
// spaced key values, used for non-numeric keys or unknown bounds.
func (s *TableSegment) sampledCheckpoints(ctx context.Context, n int) ([]Key, error) {
	keyCols := strings.Join(s.quotedKeyColumns(), ", ")
	where := s.whereClause()
	if where != "" {
		where = " " + where
	}
	descCols := make([]string, len(s.KeyColumns))
	for i, c := range s.quotedKeyColumns() {
		descCols[i] = c + " DESC"
	}
	q := fmt.Sprintf(`SELECT %s FROM (
  SELECT %s, xdiff_bucket, ROW_NUMBER() OVER (PARTITION BY xdiff_bucket ORDER BY %s) AS xdiff_rn FROM (
    SELECT %s, NTILE(%d) OVER (ORDER BY %s) AS xdiff_bucket
    FROM %s%s
  ) xdiff_buckets
) xdiff_ranked
WHERE xdiff_rn = 1
ORDER BY xdiff_bucket`, keyCols, keyCols, strings.Join(descCols, ", "), keyCols, n, keyCols, s.qualifiedTable(), where)

	stream, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var buckets []Key
	for stream.Next() {
		v := stream.Values()
		buckets = append(buckets, append(Key{}, v[:len(s.KeyColumns)]...))
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	// One row per bucket: the *last* key of buckets 1..n-1 is the interior
	// checkpoint separating it from the next bucket. NTILE(n) yields n
	// buckets, so n-1 checkpoints; drop the final bucket's row (it is the
	// segment's own MaxKey, not an interior boundary).
	if len(buckets) > 0 {
		buckets = buckets[:len(buckets)-1]
	}
	return dedupe(buckets), nil
}

// SegmentByCheckpoints returns child segments with adjacent, non-
// overlapping half-open key ranges that union-cover the parent's range.
// Empty children (from collapsed duplicate checkpoints) are skipped.
func (s *TableSegment) SegmentByCheckpoints(checkpoints []Key) []*TableSegment {
	bounds := make([]Key, 0, len(checkpoints)+2)
	bounds = append(bounds, s.MinKey)
	bounds = append(bounds, checkpoints...)
	bounds = append(bounds, s.MaxKey)

	children := make([]*TableSegment, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]
		if lo != nil && hi != nil && lo.Compare(hi) == 0 {
			continue // empty child: skip per §4.4 tie-break
		}
		children = append(children, s.Override(func(c *TableSegment) {
			c.MinKey = lo
			c.MaxKey = hi
		}))
	}
	return children
}
