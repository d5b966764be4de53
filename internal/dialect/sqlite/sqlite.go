// Package sqlite provides the SQLite dialect adapter, registering itself
// against the "sqlite" URI scheme. It uses modernc.org/sqlite, a pure-Go
// driver, so the binary stays cgo-free.
package sqlite

import (
	"fmt"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/dialect"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

func init() {
	dialect.Register("sqlite", New)
}

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct{}

// New returns a new SQLite dialect adapter.
func New() dialect.Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "sqlite" }
func (d *Dialect) DriverName() string { return "sqlite" }

func (d *Dialect) Capabilities() dialect.Capabilities {
	// SQLite ships neither MD5 nor a bitwise-XOR aggregate, so
	// NativeChecksum is false: internal/segment falls back to fetching
	// every row's canonicalised columns and folding them into a
	// core.Checksum locally with core.SegmentChecksum.
	return dialect.Capabilities{ApproxMedian: false, TableSample: false, MaterializedCTAS: true, NativeChecksum: false}
}

// RenderChecksum is never called for SQLite: Capabilities().NativeChecksum
// is false, so internal/segment computes the checksum in Go instead of
// asking SQLite to aggregate it. Implemented anyway so Dialect satisfies
// the interface uniformly; it reports the gap loudly rather than emitting
// SQL SQLite would reject.
func (d *Dialect) RenderChecksum(canonicalExprs []string) string {
	return "/* unsupported: sqlite has no native checksum aggregate, see Capabilities().NativeChecksum */"
}

func (d *Dialect) RenderCanonicalize(column string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	return d.RenderCanonicalizeExpr(d.RenderQuoted(column), ct, minScale, caseSensitive)
}

func (d *Dialect) RenderCanonicalizeExpr(col string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	t := strings.ToLower(ct.Declared)
	switch {
	case strings.Contains(t, "real") || strings.Contains(t, "float") || strings.Contains(t, "double") || strings.Contains(t, "decimal") || strings.Contains(t, "numeric"):
		return fmt.Sprintf("RTRIM(RTRIM(printf('%%.%df', %s), '0'), '.')", minScale, col)
	case strings.Contains(t, "datetime") || strings.Contains(t, "timestamp"):
		if minScale <= 0 {
			return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%S', %s)", col)
		}
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%f', %s)", col)
	case strings.Contains(t, "bool"):
		return fmt.Sprintf("(CASE WHEN %s THEN 1 ELSE 0 END)", col)
	case strings.Contains(t, "char") || strings.Contains(t, "text") || strings.Contains(t, "clob") || t == "":
		if caseSensitive {
			return fmt.Sprintf("CAST(%s AS TEXT)", col)
		}
		return fmt.Sprintf("LOWER(CAST(%s AS TEXT))", col)
	default:
		return fmt.Sprintf("CAST(%s AS TEXT)", col)
	}
}

func (d *Dialect) RenderQuoted(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (d *Dialect) RenderLimit(n int) string { return fmt.Sprintf("LIMIT %d", n) }

func (d *Dialect) RenderOffsetLimit(offset, n int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", n, offset)
}

func (d *Dialect) RenderType(name string) string {
	switch strings.ToLower(name) {
	case "bigint":
		return "INTEGER"
	default:
		return strings.ToUpper(name)
	}
}

// SchemaQuery uses pragma_table_info, SQLite's catalog function form,
// projected into the same four-column shape every other dialect returns.
// SQLite's PRAGMA does not report numeric precision/scale, so both are 0;
// canonicalisation falls back to the caller-supplied minimum scale only.
func (d *Dialect) SchemaQuery(_ /* schema: sqlite has no schema namespace */, table string) string {
	return fmt.Sprintf(`SELECT name, type, 0, 0 FROM pragma_table_info('%s') ORDER BY cid`, table)
}
