// Package segment implements the TableSegment abstraction (§4.2): an
// immutable description of a table slice that produces count, checksum,
// checkpoint, and row-fetch queries, and recursively subdivides itself.
package segment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xdiff/internal/core"
	"xdiff/internal/db"
)

// Rules carries the canonicalisation settings the façade derives once per
// diff run and applies identically to both sides: the minimum declared
// scale/precision agreed across the two schemas, and whether text columns
// compare case-sensitively.
type Rules struct {
	CaseSensitive bool
	MinScale      map[string]int // column name -> minimum scale/precision
}

func (r Rules) scaleOf(column string) int {
	if r.MinScale == nil {
		return 0
	}
	return r.MinScale[column]
}

// TableSegment is an immutable description of a table plus a closed/
// half-open key range, a column projection, and optional extra predicates.
// Sub-dividing a segment produces new TableSegment values; nothing is
// mutated in place.
type TableSegment struct {
	DB     db.Database
	Schema string
	Table  string

	KeyColumns   []string
	UpdateColumn string // empty when absent
	ExtraColumns []string

	MinKey Key // nil: unbounded below
	MaxKey Key // nil: unbounded above (half-open: MinKey <= k < MaxKey)

	MinUpdate *time.Time
	MaxUpdate *time.Time

	Where        string
	AssumeUnique bool
	Rules        Rules
	ColumnTypes  map[string]core.ColumnType // populated by WithSchema
}

// Key is a re-export of core.Key so callers of this package don't need to
// import internal/core just to build a bound.
type Key = core.Key

// Bounded reports whether both MinKey and MaxKey are set.
func (s *TableSegment) Bounded() bool { return s.MinKey != nil && s.MaxKey != nil }

// Override mutates a copy of the segment and returns it, implementing
// the spec's immutable "new(**overrides)" operation.
func (s *TableSegment) Override(fn func(*TableSegment)) *TableSegment {
	cp := *s
	// Slices/maps are shared but never mutated in place by this package;
	// New callers that need to change them assign a fresh slice/map.
	fn(&cp)
	return &cp
}

func (s *TableSegment) columnSet() core.ColumnSet {
	return core.ColumnSet{KeyColumns: s.KeyColumns, UpdateColumn: s.UpdateColumn, ExtraColumns: s.ExtraColumns}
}

// qualifiedTable renders the dialect-quoted table reference.
func (s *TableSegment) qualifiedTable() string {
	d := s.DB.Dialect()
	if s.Schema == "" {
		return d.RenderQuoted(s.Table)
	}
	return d.RenderQuoted(s.Schema) + "." + d.RenderQuoted(s.Table)
}

func (s *TableSegment) quotedKeyColumns() []string {
	d := s.DB.Dialect()
	out := make([]string, len(s.KeyColumns))
	for i, c := range s.KeyColumns {
		out[i] = d.RenderQuoted(c)
	}
	return out
}

// whereClause renders the conjunction of key bounds, update bounds, and
// the caller-supplied where predicate. Never returns an empty string
// without "WHERE": callers append it directly after the FROM clause.
func (s *TableSegment) whereClause() string {
	var preds []string
	d := s.DB.Dialect()

	if len(s.KeyColumns) == 1 {
		col := d.RenderQuoted(s.KeyColumns[0])
		if s.MinKey != nil {
			preds = append(preds, fmt.Sprintf("%s >= %s", col, literal(s.MinKey[0])))
		}
		if s.MaxKey != nil {
			preds = append(preds, fmt.Sprintf("%s < %s", col, literal(s.MaxKey[0])))
		}
	} else if s.MinKey != nil || s.MaxKey != nil {
		// Composite keys compare lexicographically; render the bound as a
		// row-value comparison, which every supported dialect accepts.
		cols := "(" + strings.Join(s.quotedKeyColumns(), ", ") + ")"
		if s.MinKey != nil {
			preds = append(preds, fmt.Sprintf("%s >= (%s)", cols, literalList(s.MinKey)))
		}
		if s.MaxKey != nil {
			preds = append(preds, fmt.Sprintf("%s < (%s)", cols, literalList(s.MaxKey)))
		}
	}

	if s.UpdateColumn != "" {
		col := d.RenderQuoted(s.UpdateColumn)
		if s.MinUpdate != nil {
			preds = append(preds, fmt.Sprintf("%s >= %s", col, timeLiteral(*s.MinUpdate)))
		}
		if s.MaxUpdate != nil {
			preds = append(preds, fmt.Sprintf("%s < %s", col, timeLiteral(*s.MaxUpdate)))
		}
	}

	if strings.TrimSpace(s.Where) != "" {
		preds = append(preds, "("+s.Where+")")
	}

	if len(preds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(preds, " AND ")
}

func timeLiteral(t time.Time) string {
	return "'" + t.UTC().Format("2006-01-02 15:04:05.000000") + "'"
}
