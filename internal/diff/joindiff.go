package diff

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"xdiff/internal/core"
	"xdiff/internal/segment"
)

// JoinDiffer implements the same-database full-outer-join algorithm
// (§4.5). Both segments must share a Database (same connection); the
// Differ façade enforces this before choosing JoinDiff.
type JoinDiffer struct {
	AssumeUniqueKey     bool
	SampleExclusiveRows bool
	SampleSize          int
	Materialize         string // table name, "%t" substituted with a UTC timestamp
	MaterializeAllRows  bool
	TableWriteLimit     int
	Logger              *zap.SugaredLogger
}

// Diff builds and streams the single join query. A full outer join is
// emulated portably (MySQL has none) as a LEFT JOIN unioned with a
// right-exclusive anti-join; each result row carries both sides' extra
// columns (NULL where absent) and Diff splits it into one or two
// core.DiffRecord values.
func (jd *JoinDiffer) Diff(ctx context.Context, segL, segR *segment.TableSegment) *ResultIterator {
	logger := jd.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan core.DiffRecord, 256)
	errPtr := &atomic.Value{}
	stats := &Stats{Algorithm: "joindiff"}

	go func() {
		defer close(out)
		if !jd.AssumeUniqueKey {
			if err := checkSegmentUnique(ctx, segL); err != nil {
				errPtr.CompareAndSwap(nil, err)
				cancel()
				return
			}
			if err := checkSegmentUnique(ctx, segR); err != nil {
				errPtr.CompareAndSwap(nil, err)
				cancel()
				return
			}
		}

		if jd.Materialize != "" {
			if err := jd.materialize(ctx, segL, segR); err != nil {
				errPtr.CompareAndSwap(nil, err)
				cancel()
				return
			}
		}

		q := jd.buildQuery(segL, segR)
		stream, err := segL.DB.Query(ctx, q)
		if err != nil {
			errPtr.CompareAndSwap(nil, err)
			cancel()
			return
		}
		defer stream.Close()

		nExtraL := len(segL.ExtraColumns)
		nExtraR := len(segR.ExtraColumns)
		var downloaded int64
		for stream.Next() {
			v := stream.Values()
			key := core.Key(v[:len(segL.KeyColumns)])
			rest := v[len(segL.KeyColumns) : len(v)-1]
			extraL := rest[:nExtraL]
			extraR := rest[nExtraL : nExtraL+nExtraR]

			// Presence is driven by the join-match marker (derived from key
			// NULL-ness in buildQuery), never by the row's own extra-column
			// data: a genuinely all-NULL extra-column tuple on the present
			// side must not be mistaken for the other side's absence.
			markerVal := v[len(v)-1]
			leftAbsent := markerVal == "R"
			rightAbsent := markerVal == "L"

			switch {
			case leftAbsent:
				downloaded++
				send(ctx, out, core.DiffRecord{Sign: core.SignRight, Row: core.Row{Key: copyKey(key), Extra: copyVals(extraR)}})
			case rightAbsent:
				downloaded++
				send(ctx, out, core.DiffRecord{Sign: core.SignLeft, Row: core.Row{Key: copyKey(key), Extra: copyVals(extraL)}})
			default:
				downloaded += 2
				send(ctx, out, core.DiffRecord{Sign: core.SignLeft, Row: core.Row{Key: copyKey(key), Extra: copyVals(extraL)}})
				send(ctx, out, core.DiffRecord{Sign: core.SignRight, Row: core.Row{Key: copyKey(key), Extra: copyVals(extraR)}})
			}
		}
		stats.addRowsDownloaded(downloaded)
		if err := stream.Err(); err != nil {
			errPtr.CompareAndSwap(nil, err)
		}
	}()

	return newResultIterator(out, cancel, errPtr, stats)
}

func send(ctx context.Context, out chan<- core.DiffRecord, rec core.DiffRecord) {
	select {
	case out <- rec:
	case <-ctx.Done():
	}
}

func copyKey(k core.Key) core.Key { return append(core.Key{}, k...) }
func copyVals(v []core.Value) []core.Value {
	out := make([]core.Value, len(v))
	copy(out, v)
	return out
}

// buildQuery renders the UNION ALL emulation of a full outer join, adding
// the mismatch predicate (any extra/update column differs, after
// canonicalisation) to the left-join leg and the anti-join predicate to
// the right-exclusive leg.
func (jd *JoinDiffer) buildQuery(segL, segR *segment.TableSegment) string {
	d := segL.DB.Dialect()
	const aliasL, aliasR = "xl", "xr"

	onPreds := make([]string, len(segL.KeyColumns))
	for i := range segL.KeyColumns {
		onPreds[i] = fmt.Sprintf("%s.%s = %s.%s", aliasL, d.RenderQuoted(segL.KeyColumns[i]), aliasR, d.RenderQuoted(segR.KeyColumns[i]))
	}
	onClause := strings.Join(onPreds, " AND ")

	selectKeyL := make([]string, len(segL.KeyColumns))
	selectKeyR := make([]string, len(segL.KeyColumns))
	for i, c := range segL.KeyColumns {
		selectKeyL[i] = aliasL + "." + d.RenderQuoted(c)
		selectKeyR[i] = aliasR + "." + d.RenderQuoted(segR.KeyColumns[i])
	}

	extraL := qualifyAll(aliasL, d, segL.ExtraColumns)
	extraR := qualifyAll(aliasR, d, segR.ExtraColumns)

	mismatch := jd.mismatchPredicate(segL, segR, aliasL, aliasR)

	// Presence markers are driven by key NULL-ness, not by extra-column
	// NULL-ness: a row whose real extra-column data is all NULL on its
	// present side must still be recognised as present. 'B' = both sides
	// matched, 'L'/'R' = only that side matched.
	leftMarker := "CASE WHEN " + aliasR + "." + d.RenderQuoted(segR.KeyColumns[0]) + " IS NULL THEN 'L' ELSE 'B' END AS " + d.RenderQuoted("xdiff_marker")
	selectCols := strings.Join(append(append([]string{}, selectKeyL...), append(extraL, extraR...)...), ", ") + ", " + leftMarker

	where := "TRUE"
	if !jd.MaterializeAllRows {
		where = fmt.Sprintf("%s.%s IS NULL OR (%s)", aliasR, d.RenderQuoted(segR.KeyColumns[0]), mismatch)
	}

	leftLeg := fmt.Sprintf(`SELECT %s FROM %s %s LEFT JOIN %s %s ON %s WHERE %s`,
		selectCols, tableRef(segL), aliasL, tableRef(segR), aliasR, onClause, where)

	// rightLeg is always the right-exclusive anti-join leg (WHERE aliasL key
	// IS NULL), so its marker is the constant 'R'.
	rightOnlyCols := strings.Join(append(append([]string{}, selectKeyR...), append(extraL, extraR...)...), ", ") + ", 'R' AS " + d.RenderQuoted("xdiff_marker")
	rightLeg := fmt.Sprintf(`SELECT %s FROM %s %s LEFT JOIN %s %s ON %s WHERE %s.%s IS NULL`,
		rightOnlyCols, tableRef(segR), aliasR, tableRef(segL), aliasL, onClause, aliasL, d.RenderQuoted(segL.KeyColumns[0]))

	// --sample-exclusive-rows caps how many rows of each leg are fetched,
	// at the cost of losing the deterministic key ordering: exclusive rows
	// on a huge one-sided table are capped by a random sample rather than
	// downloaded in full.
	if jd.SampleExclusiveRows && jd.SampleSize > 0 && !jd.MaterializeAllRows {
		order := randomOrderExpr(d.Name())
		leftLeg = fmt.Sprintf("SELECT * FROM (%s ORDER BY %s) xs %s", leftLeg, order, d.RenderLimit(jd.SampleSize))
		rightLeg = fmt.Sprintf("SELECT * FROM (%s ORDER BY %s) xs %s", rightLeg, order, d.RenderLimit(jd.SampleSize))
	}

	return leftLeg + "\nUNION ALL\n" + rightLeg
}

// randomOrderExpr returns the dialect's random-ordering expression, used
// only for --sample-exclusive-rows.
func randomOrderExpr(dialectName string) string {
	switch dialectName {
	case "mysql":
		return "RAND()"
	case "mssql":
		return "NEWID()"
	default: // postgres, sqlite
		return "RANDOM()"
	}
}

func qualifyAll(alias string, d interface{ RenderQuoted(string) string }, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + d.RenderQuoted(c)
	}
	return out
}

// nullSafeDistinct renders a portable null-safe inequality: IS DISTINCT
// FROM isn't available on MySQL or SQL Server, so the comparison is spelled
// out instead of relying on a single operator.
func nullSafeDistinct(l, r string) string {
	return fmt.Sprintf("(%s <> %s OR (%s IS NULL) <> (%s IS NULL))", l, r, l, r)
}

// mismatchPredicate compares each extra/update column through
// RenderCanonicalizeExpr before the null-safe inequality, the same
// canonicalisation render_checksum applies server-side, so two
// cross-dialect values that canonicalise equal (e.g. "1.50" vs "1.5")
// don't spuriously widen a downloaded segment.
func (jd *JoinDiffer) mismatchPredicate(segL, segR *segment.TableSegment, aliasL, aliasR string) string {
	d := segL.DB.Dialect()
	var preds []string
	addPred := func(colL, colR string) {
		ct := segL.ColumnTypes[colL]
		scale := scaleOf(segL.Rules, colL)
		cl := d.RenderCanonicalizeExpr(aliasL+"."+d.RenderQuoted(colL), ct, scale, segL.Rules.CaseSensitive)
		cr := d.RenderCanonicalizeExpr(aliasR+"."+d.RenderQuoted(colR), ct, scale, segL.Rules.CaseSensitive)
		preds = append(preds, nullSafeDistinct(cl, cr))
	}
	for i, c := range segL.ExtraColumns {
		addPred(c, segR.ExtraColumns[i])
	}
	if segL.UpdateColumn != "" {
		addPred(segL.UpdateColumn, segR.UpdateColumn)
	}
	if len(preds) == 0 {
		return "FALSE"
	}
	return strings.Join(preds, " OR ")
}

// materialize wraps buildQuery's left-join leg (widened to all rows) as
// CREATE TABLE name AS ..., substituting "%t" with the current UTC
// timestamp and dropping a pre-existing table of the same name.
func (jd *JoinDiffer) materialize(ctx context.Context, segL, segR *segment.TableSegment) error {
	name := strings.ReplaceAll(jd.Materialize, "%t", time.Now().UTC().Format("20060102T150405Z"))
	d := segL.DB.Dialect()
	quotedName := d.RenderQuoted(name)

	if err := segL.DB.Exec(ctx, "DROP TABLE IF EXISTS "+quotedName); err != nil {
		return err
	}

	saved := jd.MaterializeAllRows
	jd.MaterializeAllRows = true
	q := jd.buildQuery(segL, segR)
	jd.MaterializeAllRows = saved

	limitClause := ""
	if jd.TableWriteLimit > 0 {
		limitClause = " " + d.RenderLimit(jd.TableWriteLimit)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s AS %s%s", quotedName, q, limitClause)
	return segL.DB.Exec(ctx, createSQL)
}
