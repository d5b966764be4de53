package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdiff/internal/core"
	"xdiff/internal/db"
	"xdiff/internal/dialect"
	"xdiff/internal/dialect/mysql"
	"xdiff/internal/segment"
)

// joinFakeRow models a single row of a joined query's output: the shared
// key, each side's extra columns, and the presence marker buildQuery
// appends ("B" both sides matched, "L" left-only, "R" right-only) so a
// row can stand in for a left-only, right-only, or matched-and-differing
// record.
type joinFakeRow struct {
	key    core.Value
	extraL []core.Value
	extraR []core.Value
	marker core.Value
}

// joinFakeDB ignores the query text buildQuery produces entirely and
// replays a fixed row set: adequate for exercising Diff's row-splitting
// logic (the part that doesn't depend on what SQL was actually sent).
type joinFakeDB struct {
	rows []joinFakeRow
}

func (f *joinFakeDB) Dialect() dialect.Dialect { return fakeDialect{} }

func (f *joinFakeDB) Query(_ context.Context, _ string) (db.RowStream, error) {
	return &joinFakeStream{rows: f.rows, idx: -1}, nil
}

func (f *joinFakeDB) Scalar(_ context.Context, _ string) (core.Value, error) {
	return int64(len(f.rows)), nil
}

func (f *joinFakeDB) SelectSchema(_ context.Context, _, _ string) (map[string]core.ColumnType, error) {
	return map[string]core.ColumnType{}, nil
}

func (f *joinFakeDB) Exec(_ context.Context, _ string) error { return nil }
func (f *joinFakeDB) Close() error                           { return nil }

type joinFakeStream struct {
	rows []joinFakeRow
	idx  int
}

func (s *joinFakeStream) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

func (s *joinFakeStream) Values() []core.Value {
	r := s.rows[s.idx]
	out := []core.Value{r.key}
	out = append(out, r.extraL...)
	out = append(out, r.extraR...)
	out = append(out, r.marker)
	return out
}

func (s *joinFakeStream) Err() error   { return nil }
func (s *joinFakeStream) Close() error { return nil }

func newJoinSegments(rows []joinFakeRow) (*segment.TableSegment, *segment.TableSegment) {
	fdb := &joinFakeDB{rows: rows}
	segL := &segment.TableSegment{
		DB:           fdb,
		Table:        "left_table",
		KeyColumns:   []string{"id"},
		ExtraColumns: []string{"name"},
		AssumeUnique: true,
	}
	segR := &segment.TableSegment{
		DB:           fdb,
		Table:        "right_table",
		KeyColumns:   []string{"id"},
		ExtraColumns: []string{"name"},
		AssumeUnique: true,
	}
	return segL, segR
}

func TestJoinDiffSplitsMatchedDifferingRowIntoBothSigns(t *testing.T) {
	rows := []joinFakeRow{
		{key: int64(1), extraL: []core.Value{"alice"}, extraR: []core.Value{"alicia"}, marker: "B"},
	}
	segL, segR := newJoinSegments(rows)

	jd := &JoinDiffer{AssumeUniqueKey: true}
	it := jd.Diff(context.Background(), segL, segR)
	recs := collect(t, it)
	require.NoError(t, it.Close())

	require.Len(t, recs, 2)
	assert.Equal(t, core.SignLeft, recs[0].Sign)
	assert.Equal(t, core.Row{Key: core.Key{int64(1)}, Extra: []core.Value{"alice"}}, recs[0].Row)
	assert.Equal(t, core.SignRight, recs[1].Sign)
	assert.Equal(t, core.Row{Key: core.Key{int64(1)}, Extra: []core.Value{"alicia"}}, recs[1].Row)
}

func TestJoinDiffRightAbsentExtrasYieldLeftOnlyRecord(t *testing.T) {
	rows := []joinFakeRow{
		{key: int64(2), extraL: []core.Value{"bob"}, extraR: []core.Value{nil}, marker: "L"},
	}
	segL, segR := newJoinSegments(rows)

	jd := &JoinDiffer{AssumeUniqueKey: true}
	recs := collect(t, jd.Diff(context.Background(), segL, segR))

	require.Len(t, recs, 1)
	assert.Equal(t, core.SignLeft, recs[0].Sign)
	assert.Equal(t, "bob", recs[0].Row.Extra[0])
}

func TestJoinDiffLeftAbsentExtrasYieldRightOnlyRecord(t *testing.T) {
	rows := []joinFakeRow{
		{key: int64(3), extraL: []core.Value{nil}, extraR: []core.Value{"carol"}, marker: "R"},
	}
	segL, segR := newJoinSegments(rows)

	jd := &JoinDiffer{AssumeUniqueKey: true}
	recs := collect(t, jd.Diff(context.Background(), segL, segR))

	require.Len(t, recs, 1)
	assert.Equal(t, core.SignRight, recs[0].Sign)
	assert.Equal(t, "carol", recs[0].Row.Extra[0])
}

// A left-only row whose own extra columns are genuinely all NULL must
// still resolve via the marker, not be mistaken for right-absence.
func TestJoinDiffLeftOnlyRowWithAllNilExtrasStillYieldsLeftOnlyRecord(t *testing.T) {
	rows := []joinFakeRow{
		{key: int64(4), extraL: []core.Value{nil}, extraR: []core.Value{nil}, marker: "L"},
	}
	segL, segR := newJoinSegments(rows)

	jd := &JoinDiffer{AssumeUniqueKey: true}
	recs := collect(t, jd.Diff(context.Background(), segL, segR))

	require.Len(t, recs, 1)
	assert.Equal(t, core.SignLeft, recs[0].Sign)
	assert.Nil(t, recs[0].Row.Extra[0])
}

func TestJoinDiffBuildQueryUnionsLeftJoinAndAntiJoinLegs(t *testing.T) {
	segL, segR := newJoinSegments(nil)
	jd := &JoinDiffer{AssumeUniqueKey: true}

	q := jd.buildQuery(segL, segR)
	assert.Contains(t, q, "UNION ALL")
	assert.Contains(t, q, "LEFT JOIN")
	assert.Contains(t, q, "xr.id IS NULL")
	assert.Contains(t, q, "xl.name <> xr.name OR (xl.name IS NULL) <> (xr.name IS NULL)")
}

func TestJoinDiffBuildQueryMaterializeAllRowsDropsMismatchFilter(t *testing.T) {
	segL, segR := newJoinSegments(nil)
	jd := &JoinDiffer{AssumeUniqueKey: true, MaterializeAllRows: true}

	q := jd.buildQuery(segL, segR)
	assert.Contains(t, q, "WHERE TRUE")
}

func TestJoinDiffBuildQuerySamplingWrapsLegsWithRandomOrder(t *testing.T) {
	segL, segR := newJoinSegments(nil)
	jd := &JoinDiffer{AssumeUniqueKey: true, SampleExclusiveRows: true, SampleSize: 50}

	q := jd.buildQuery(segL, segR)
	assert.Contains(t, q, "RANDOM()")
}

// mysqlDialectFakeDB swaps in the real mysql dialect so mismatchPredicate's
// canonicalisation wrapping is exercised with a non-trivial RenderCanonicalizeExpr,
// rather than fakeDialect's identity passthrough.
type mysqlDialectFakeDB struct{ joinFakeDB }

func (f *mysqlDialectFakeDB) Dialect() dialect.Dialect { return mysql.New() }

func TestJoinDiffMismatchPredicateCanonicalisesExtraColumns(t *testing.T) {
	fdb := &mysqlDialectFakeDB{}
	segL := &segment.TableSegment{
		DB:           fdb,
		Table:        "left_table",
		KeyColumns:   []string{"id"},
		ExtraColumns: []string{"price"},
		ColumnTypes:  map[string]core.ColumnType{"price": {Declared: "decimal"}},
		AssumeUnique: true,
	}
	segR := &segment.TableSegment{
		DB:           fdb,
		Table:        "right_table",
		KeyColumns:   []string{"id"},
		ExtraColumns: []string{"price"},
		AssumeUnique: true,
	}

	jd := &JoinDiffer{AssumeUniqueKey: true}
	pred := jd.mismatchPredicate(segL, segR, "xl", "xr")

	// Both sides run through the decimal-rounding canonicalisation
	// RenderChecksum applies server-side, not a raw <> on xl.`price`.
	assert.Contains(t, pred, "ROUND(xl.`price`")
	assert.Contains(t, pred, "ROUND(xr.`price`")
}
