package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xdiff/internal/core"
)

func TestRenderQuotedEscapesBracket(t *testing.T) {
	d := New()
	assert.Equal(t, "[id]", d.RenderQuoted("id"))
	assert.Equal(t, "[weird]]name]", d.RenderQuoted("weird]name"))
}

func TestRenderChecksumUsesHashBytesAndBitXor(t *testing.T) {
	d := New()
	expr := d.RenderChecksum([]string{"a", "b"})
	assert.Contains(t, expr, "HASHBYTES('MD5',")
	assert.Contains(t, expr, "BIT_XOR(")
}

func TestRenderChecksumTruncatesToFifteenHexDigits(t *testing.T) {
	// Must match mysql.Dialect and postgres.Dialect's truncation width
	// exactly, or checksums never agree across dialects.
	d := New()
	expr := d.RenderChecksum([]string{"a"})
	assert.Contains(t, expr, "LEFT(", "truncates the hex digest before converting to bigint")
	assert.Contains(t, expr, ", 15)")
}

func TestRenderCanonicalizeDatetimePrecision(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "datetime2"}
	assert.Contains(t, d.RenderCanonicalize("ts", ct, 0, true), "120)")
	assert.Contains(t, d.RenderCanonicalize("ts", ct, 3, true), "121)")
}

func TestRenderCanonicalizeBit(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "bit"}
	assert.Contains(t, d.RenderCanonicalize("active", ct, 0, true), "CONVERT(VARCHAR(1),")
}

func TestRenderCanonicalizeCharCaseFolding(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "nvarchar"}
	assert.Contains(t, d.RenderCanonicalize("name", ct, 0, false), "LOWER(")
	assert.NotContains(t, d.RenderCanonicalize("name", ct, 0, true), "LOWER(")
}

func TestRenderLimitUsesOffsetFetch(t *testing.T) {
	d := New()
	assert.Contains(t, d.RenderLimit(10), "OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY")
	assert.Contains(t, d.RenderOffsetLimit(5, 10), "OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY")
}

func TestSchemaQueryDefaultsToSchemaName(t *testing.T) {
	d := New()
	q := d.SchemaQuery("", "widgets")
	assert.Contains(t, q, "SCHEMA_NAME()")
	assert.Contains(t, q, "'widgets'")
}

func TestCapabilitiesRequireSQLServer2022ForNativeChecksum(t *testing.T) {
	assert.True(t, New().Capabilities().NativeChecksum)
}
