// Package postgres provides the PostgreSQL dialect adapter. It registers
// itself against the "postgres" and "postgresql" URI schemes.
package postgres

import (
	"fmt"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/dialect"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
)

func init() {
	dialect.Register("postgres", New)
	dialect.Register("postgresql", New)
}

// Dialect implements dialect.Dialect for PostgreSQL.
type Dialect struct{}

// New returns a new PostgreSQL dialect adapter.
func New() dialect.Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "postgresql" }
func (d *Dialect) DriverName() string { return "postgres" }

func (d *Dialect) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{ApproxMedian: true, TableSample: true, MaterializedCTAS: true, NativeChecksum: true}
}

// RenderChecksum mirrors mysql.Dialect.RenderChecksum: MD5 the
// separator-joined canonicalised exprs, truncate the hex digest, cast to
// bigint, reduce modulo core.Checksum64Prime, XOR-aggregate with
// BIT_XOR(...) (Postgres 16+) falling back to a sum-based XOR emulation
// via a custom aggregate is out of scope; Postgres 16's native bit_xor
// aggregate is assumed.
func (d *Dialect) RenderChecksum(canonicalExprs []string) string {
	concat := "CONCAT_WS('" + core.FieldSeparator + "', " + strings.Join(canonicalExprs, ", ") + ")"
	hex := fmt.Sprintf("('x' || substr(md5(%s), 1, 15))::bit(60)::bigint", concat)
	return fmt.Sprintf("BIT_XOR(%s %% %d)", hex, core.Checksum64Prime)
}

func (d *Dialect) RenderCanonicalize(column string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	return d.RenderCanonicalizeExpr(d.RenderQuoted(column), ct, minScale, caseSensitive)
}

func (d *Dialect) RenderCanonicalizeExpr(col string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	t := strings.ToLower(ct.Declared)
	switch {
	case strings.Contains(t, "numeric") || strings.Contains(t, "decimal") || strings.Contains(t, "double") || strings.Contains(t, "real"):
		return fmt.Sprintf("TRIM(TRAILING '.' FROM TRIM(TRAILING '0' FROM ROUND(%s::numeric, %d)::text))", col, minScale)
	case strings.Contains(t, "timestamp"):
		if minScale <= 0 {
			return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS')", col)
		}
		return fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS.US')", col)
	case t == "boolean" || t == "bool":
		return fmt.Sprintf("(CASE WHEN %s THEN 1 ELSE 0 END)", col)
	case strings.Contains(t, "char") || strings.Contains(t, "text"):
		if caseSensitive {
			return fmt.Sprintf("%s::text", col)
		}
		return fmt.Sprintf("LOWER(%s::text)", col)
	default:
		return fmt.Sprintf("%s::text", col)
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
		return "BIGINT"
	case "char1":
		return `"char"`
	default:
		return strings.ToUpper(name)
	}
}

func (d *Dialect) SchemaQuery(schema, table string) string {
	if schema == "" {
		schema = "current_schema()"
	} else {
		schema = "'" + schema + "'"
	}
	return fmt.Sprintf(`SELECT column_name, data_type, COALESCE(numeric_precision, 0), COALESCE(numeric_scale, 0)
FROM information_schema.columns
WHERE table_schema = %s AND table_name = '%s'
ORDER BY ordinal_position`, schema, table)
}
