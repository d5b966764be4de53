package segment

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"xdiff/internal/core"
)

// CountQuery renders "SELECT COUNT(*) FROM table WHERE ...".
func (s *TableSegment) CountQuery() string {
	where := s.whereClause()
	if where != "" {
		where = " " + where
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.qualifiedTable(), where)
}

// Count executes CountQuery and returns the row count.
func (s *TableSegment) Count(ctx context.Context) (int64, error) {
	v, err := s.DB.Scalar(ctx, s.CountQuery())
	if err != nil {
		return 0, err
	}
	return toInt64(v), nil
}

// canonicalExprs renders RenderCanonicalize for every projected column in
// key, update, extra order -- the same order count_and_checksum and the
// row fetch query use, so local alignment and the SQL checksum agree.
func (s *TableSegment) canonicalExprs() []string {
	d := s.DB.Dialect()
	cols := append(append([]string{}, s.KeyColumns...), s.updateAndExtra()...)
	exprs := make([]string, len(cols))
	for i, c := range cols {
		ct := s.ColumnTypes[c]
		exprs[i] = d.RenderCanonicalize(c, ct, s.Rules.scaleOf(c), s.Rules.CaseSensitive)
	}
	return exprs
}

func (s *TableSegment) updateAndExtra() []string {
	out := make([]string, 0, len(s.ExtraColumns)+1)
	if s.UpdateColumn != "" {
		out = append(out, s.UpdateColumn)
	}
	out = append(out, s.ExtraColumns...)
	return out
}

// CountAndChecksumQuery renders the single query computing both count and
// checksum together, as required by §4.2. Valid only when the dialect
// supports a native checksum aggregate; see Capabilities().NativeChecksum.
func (s *TableSegment) CountAndChecksumQuery() string {
	checksumExpr := s.DB.Dialect().RenderChecksum(s.canonicalExprs())
	where := s.whereClause()
	if where != "" {
		where = " " + where
	}
	return fmt.Sprintf("SELECT COUNT(*), %s FROM %s%s", checksumExpr, s.qualifiedTable(), where)
}

// CountAndChecksum returns (count, checksum) for the segment. When the
// dialect cannot express the checksum aggregate in SQL, it falls back to
// fetching the canonicalised columns for every row and folding them into
// a core.Checksum in Go (core.SegmentChecksum).
func (s *TableSegment) CountAndChecksum(ctx context.Context) (int64, core.Checksum, error) {
	if s.DB.Dialect().Capabilities().NativeChecksum {
		stream, err := s.DB.Query(ctx, s.CountAndChecksumQuery())
		if err != nil {
			return 0, 0, err
		}
		defer stream.Close()
		if !stream.Next() {
			if err := stream.Err(); err != nil {
				return 0, 0, err
			}
			return 0, 0, nil
		}
		v := stream.Values()
		return toInt64(v[0]), core.Checksum(toInt64(v[1])), stream.Err()
	}
	return s.localCountAndChecksum(ctx)
}

func (s *TableSegment) localCountAndChecksum(ctx context.Context) (int64, core.Checksum, error) {
	q := s.canonicalSelectQuery()
	stream, err := s.DB.Query(ctx, q)
	if err != nil {
		return 0, 0, err
	}
	defer stream.Close()

	var count int64
	var checksum core.Checksum
	for stream.Next() {
		values := stream.Values()
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = fmt.Sprint(v)
		}
		checksum = checksum.Compose(core.RowChecksum(fields))
		count++
	}
	return count, checksum, stream.Err()
}

func (s *TableSegment) canonicalSelectQuery() string {
	exprs := s.canonicalExprs()
	where := s.whereClause()
	if where != "" {
		where = " " + where
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(exprs, ", "), s.qualifiedTable(), where)
}

// rowsQuery renders the query GetValues() executes: the raw (uncanonicalised)
// key/update/extra columns, ordered by key so merge-join alignment works.
func (s *TableSegment) rowsQuery() string {
	d := s.DB.Dialect()
	cols := append(append([]string{}, s.KeyColumns...), s.updateAndExtra()...)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.RenderQuoted(c)
	}
	where := s.whereClause()
	if where != "" {
		where = " " + where
	}
	orderBy := "ORDER BY " + strings.Join(s.quotedKeyColumns(), ", ")
	return fmt.Sprintf("SELECT %s FROM %s%s %s", strings.Join(quoted, ", "), s.qualifiedTable(), where, orderBy)
}

// GetValues streams every row in the segment in key order.
func (s *TableSegment) GetValues(ctx context.Context) (*RowIterator, error) {
	stream, err := s.DB.Query(ctx, s.rowsQuery())
	if err != nil {
		return nil, err
	}
	return &RowIterator{stream: stream, numKey: len(s.KeyColumns), hasUpdate: s.UpdateColumn != ""}, nil
}

// toInt64 coerces a scalar query result to int64. MySQL's text protocol
// (the default for QueryContext without server-side prepared statements)
// returns COUNT(*) and the BIT_XOR checksum as []byte, not int64, so both
// of those forms must be parsed rather than dropped to zero.
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
