// Package mssql provides the Microsoft SQL Server dialect adapter. It
// registers itself against the "sqlserver" and "mssql" URI schemes.
package mssql

import (
	"fmt"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/dialect"

	_ "github.com/denisenkom/go-mssqldb" // registers the "sqlserver" database/sql driver
)

func init() {
	dialect.Register("sqlserver", New)
	dialect.Register("mssql", New)
}

// Dialect implements dialect.Dialect for Microsoft SQL Server.
type Dialect struct{}

// New returns a new SQL Server dialect adapter.
func New() dialect.Dialect { return &Dialect{} }

func (d *Dialect) Name() string       { return "mssql" }
func (d *Dialect) DriverName() string { return "sqlserver" }

func (d *Dialect) Capabilities() dialect.Capabilities {
	return dialect.Capabilities{ApproxMedian: false, TableSample: true, MaterializedCTAS: true, NativeChecksum: true}
}

// RenderChecksum concatenates with +, hashes with HASHBYTES('MD5', ...),
// hex-encodes the digest, takes its leading 15 hex digits as a bigint,
// reduces modulo core.Checksum64Prime, and XOR-aggregates with BIT_XOR.
// The 15-hex-digit (60-bit) truncation matches mysql.Dialect and
// postgres.Dialect exactly, which is what lets a cross-database HashDiff
// between MSSQL and either of them trust a checksum match without
// downloading the segment. Requires SQL Server 2022+; earlier engines
// have no native XOR aggregate.
func (d *Dialect) RenderChecksum(canonicalExprs []string) string {
	concat := strings.Join(canonicalExprs, " + '"+core.FieldSeparator+"' + ")
	hashBytes := fmt.Sprintf("HASHBYTES('MD5', %s)", concat)
	hexDigest := fmt.Sprintf("CONVERT(VARCHAR(32), %s, 2)", hashBytes)
	truncated := fmt.Sprintf("LEFT(%s, 15)", hexDigest)
	asBigint := fmt.Sprintf("CONVERT(BIGINT, CONVERT(VARBINARY(8), '0x0' + %s, 1))", truncated)
	return fmt.Sprintf("BIT_XOR(%s %% %d)", asBigint, core.Checksum64Prime)
}

func (d *Dialect) RenderCanonicalize(column string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	return d.RenderCanonicalizeExpr(d.RenderQuoted(column), ct, minScale, caseSensitive)
}

func (d *Dialect) RenderCanonicalizeExpr(col string, ct core.ColumnType, minScale int, caseSensitive bool) string {
	t := strings.ToLower(ct.Declared)
	switch {
	case strings.Contains(t, "decimal") || strings.Contains(t, "numeric") || strings.Contains(t, "float") || strings.Contains(t, "real"):
		return fmt.Sprintf("CONVERT(VARCHAR(64), CAST(ROUND(%s, %d) AS DECIMAL(38,%d)))", col, minScale, minScale)
	case strings.Contains(t, "datetime") || strings.Contains(t, "smalldatetime") || strings.Contains(t, "date"):
		if minScale <= 0 {
			return fmt.Sprintf("CONVERT(VARCHAR(19), %s, 120)", col)
		}
		return fmt.Sprintf("CONVERT(VARCHAR(27), %s, 121)", col)
	case t == "bit":
		return fmt.Sprintf("CONVERT(VARCHAR(1), %s)", col)
	case strings.Contains(t, "char") || strings.Contains(t, "text"):
		if caseSensitive {
			return fmt.Sprintf("CONVERT(VARCHAR(MAX), %s)", col)
		}
		return fmt.Sprintf("LOWER(CONVERT(VARCHAR(MAX), %s))", col)
	default:
		return fmt.Sprintf("CONVERT(VARCHAR(MAX), %s)", col)
	}
}

func (d *Dialect) RenderQuoted(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

func (d *Dialect) RenderLimit(n int) string {
	return fmt.Sprintf("ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
}

func (d *Dialect) RenderOffsetLimit(offset, n int) string {
	return fmt.Sprintf("ORDER BY (SELECT NULL) OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, n)
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
		schema = "SCHEMA_NAME()"
	} else {
		schema = "'" + schema + "'"
	}
	return fmt.Sprintf(`SELECT COLUMN_NAME, DATA_TYPE, COALESCE(NUMERIC_PRECISION, 0), COALESCE(NUMERIC_SCALE, 0)
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = %s AND TABLE_NAME = '%s'
ORDER BY ORDINAL_POSITION`, schema, table)
}
