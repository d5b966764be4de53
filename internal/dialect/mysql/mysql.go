// Package mysql provides the MySQL/MariaDB dialect adapter: checksum and
// canonicalisation rendering, identifier quoting, and schema introspection
// SQL. It registers itself against the "mysql" and "mariadb" URI schemes.
package mysql

import (
	"fmt"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/dialect"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
)

func init() {
	dialect.Register("mysql", New)
	dialect.Register("mariadb", New)
}

// Dialect implements dialect.Dialect for MySQL and MariaDB.
type Dialect struct{}

// New returns a new MySQL dialect adapter.
func New() dialect.Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "mysql" }
func (d *Dialect) DriverName() string { return "mysql" }

func (d *Dialect) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{ApproxMedian: false, TableSample: false, MaterializedCTAS: true, NativeChecksum: true}
}

// RenderChecksum concatenates the canonicalised expressions with
// core.FieldSeparator, MD5-hashes the result, truncates the hex digest to
// fit an unsigned 64-bit integer, reduces it modulo core.Checksum64Prime,
// and XOR-aggregates across the group with BIT_XOR.
func (d *Dialect) RenderChecksum(canonicalExprs []string) string {
	concat := "CONCAT_WS('" + core.FieldSeparator + "', " + strings.Join(canonicalExprs, ", ") + ")"
	hex := fmt.Sprintf("CONV(SUBSTRING(MD5(%s), 1, 15), 16, 10)", concat)
	return fmt.Sprintf("BIT_XOR(CAST(%s AS SIGNED) %% %d)", hex, core.Checksum64Prime)
}

func (d *Dialect) RenderCanonicalize(column string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	return d.RenderCanonicalizeExpr(d.RenderQuoted(column), ct, minScale, caseSensitive)
}

func (d *Dialect) RenderCanonicalizeExpr(col string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	t := strings.ToLower(ct.Declared)
	switch {
	case strings.Contains(t, "float") || strings.Contains(t, "double") || strings.Contains(t, "decimal") || strings.Contains(t, "numeric"):
		return fmt.Sprintf("TRIM(TRAILING '.' FROM TRIM(TRAILING '0' FROM CAST(ROUND(%s, %d) AS CHAR)))", col, minScale)
	case strings.Contains(t, "timestamp") || strings.Contains(t, "datetime"):
		if minScale <= 0 {
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:%%s')", col)
		}
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:%%s.%%f')", col)
	case strings.Contains(t, "tinyint(1)") || t == "bool" || t == "boolean":
		return fmt.Sprintf("CAST(%s AS UNSIGNED)", col)
	case strings.Contains(t, "char") || strings.Contains(t, "text") || strings.Contains(t, "enum"):
		if caseSensitive {
			return fmt.Sprintf("CAST(%s AS CHAR)", col)
		}
		return fmt.Sprintf("LOWER(CAST(%s AS CHAR))", col)
	default:
		return fmt.Sprintf("CAST(%s AS CHAR)", col)
	}
}

func (d *Dialect) RenderQuoted(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
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
		return "CHAR(1)"
	default:
		return strings.ToUpper(name)
	}
}

func (d *Dialect) SchemaQuery(schema, table string) string {
	if schema == "" {
		schema = "DATABASE()"
	} else {
		schema = "'" + schema + "'"
	}
	return fmt.Sprintf(`SELECT column_name, data_type, COALESCE(numeric_precision, 0), COALESCE(numeric_scale, 0)
FROM information_schema.columns
WHERE table_schema = %s AND table_name = '%s'
ORDER BY ordinal_position`, schema, table)
}
