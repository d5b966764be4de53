package diff

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/segment"
)

// downloadAndAlign fetches both segments in full and merge-joins them by
// key in key order (§4.4's alignment rules for downloaded segments): a
// key present on only one side emits one record; matching keys with equal
// extra-column tuples emit nothing; matching keys with different tuples
// emit a SignLeft record followed by a SignRight record for the same key.
func downloadAndAlign(ctx context.Context, segL, segR *segment.TableSegment, emit func(core.DiffRecord) bool, stats *Stats) error {
	itL, err := segL.GetValues(ctx)
	if err != nil {
		return err
	}
	defer itL.Close()
	itR, err := segR.GetValues(ctx)
	if err != nil {
		return err
	}
	defer itR.Close()

	hasL := itL.Next()
	hasR := itR.Next()
	var downloaded int64

	for hasL || hasR {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch {
		case hasL && !hasR:
			downloaded++
			if !emit(core.DiffRecord{Sign: core.SignLeft, Row: itL.Row()}) {
				return finishErr(itL, itR)
			}
			hasL = itL.Next()

		case hasR && !hasL:
			downloaded++
			if !emit(core.DiffRecord{Sign: core.SignRight, Row: itR.Row()}) {
				return finishErr(itL, itR)
			}
			hasR = itR.Next()

		default:
			rowL, rowR := itL.Row(), itR.Row()
			switch rowL.Key.Compare(rowR.Key) {
			case -1:
				downloaded++
				if !emit(core.DiffRecord{Sign: core.SignLeft, Row: rowL}) {
					return finishErr(itL, itR)
				}
				hasL = itL.Next()
			case 1:
				downloaded++
				if !emit(core.DiffRecord{Sign: core.SignRight, Row: rowR}) {
					return finishErr(itL, itR)
				}
				hasR = itR.Next()
			default:
				downloaded += 2
				if !extrasEqual(segL.ExtraColumns, rowL.Extra, rowR.Extra, segL.Rules) {
					if !emit(core.DiffRecord{Sign: core.SignLeft, Row: rowL}) {
						return finishErr(itL, itR)
					}
					if !emit(core.DiffRecord{Sign: core.SignRight, Row: rowR}) {
						return finishErr(itL, itR)
					}
				}
				hasL = itL.Next()
				hasR = itR.Next()
			}
		}
	}

	stats.addRowsDownloaded(downloaded)
	if err := itL.Err(); err != nil {
		return err
	}
	return itR.Err()
}

func finishErr(itL, itR *segment.RowIterator) error {
	if err := itL.Err(); err != nil {
		return err
	}
	if err := itR.Err(); err != nil {
		return err
	}
	return nil
}

// extrasEqual compares two rows' extra-column tuples the way
// render_canonicalize does server-side: numeric columns compare after
// rounding to the run's agreed minimum scale (so cross-dialect values
// like "1.50" and "1.5" match instead of falsely diffing), text columns
// compare case-insensitively when the run is, and everything else
// compares by rendered text. GetValues fetches raw driver values (so
// text/JSON output shows the original representation); this is the one
// place those raw values are compared instead of a SQL-side canonical
// form.
func extrasEqual(names []string, a, b []core.Value, rules segment.Rules) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEqual(a[i], b[i], scaleOf(rules, names[i]), rules.CaseSensitive) {
			return false
		}
	}
	return true
}

func valueEqual(a, b core.Value, scale int, caseSensitive bool) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			mult := math.Pow10(scale)
			return math.Round(fa*mult) == math.Round(fb*mult)
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	if !caseSensitive {
		sa, sb = strings.ToLower(sa), strings.ToLower(sb)
	}
	return sa == sb
}

func asFloat(v core.Value) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// scaleOf mirrors segment.Rules' unexported scaleOf: the minimum
// scale/precision agreed across both sides for column, or 0 when the run
// carries no per-column overrides.
func scaleOf(rules segment.Rules, column string) int {
	if rules.MinScale == nil {
		return 0
	}
	return rules.MinScale[column]
}
