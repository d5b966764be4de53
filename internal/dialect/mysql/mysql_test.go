package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xdiff/internal/core"
)

func TestRenderQuotedEscapesBacktick(t *testing.T) {
	d := New()
	assert.Equal(t, "`id`", d.RenderQuoted("id"))
	assert.Equal(t, "`weird``name`", d.RenderQuoted("weird`name"))
}

func TestRenderCanonicalizeCaseFolding(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "varchar"}
	assert.Contains(t, d.RenderCanonicalize("name", ct, 0, true), "CAST(")
	assert.Contains(t, d.RenderCanonicalize("name", ct, 0, false), "LOWER(")
}

func TestRenderCanonicalizeTimestampPrecision(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "timestamp"}
	assert.NotContains(t, d.RenderCanonicalize("ts", ct, 0, true), "%f", "no fractional seconds when minScale is 0")
	assert.Contains(t, d.RenderCanonicalize("ts", ct, 3, true), "%f", "fractional seconds requested when minScale > 0")
}

func TestRenderCanonicalizeExprAcceptsQualifiedColumn(t *testing.T) {
	d := New()
	ct := core.ColumnType{Declared: "decimal"}
	expr := d.RenderCanonicalizeExpr("xl.`price`", ct, 2, true)
	assert.Contains(t, expr, "xl.`price`")
	assert.Equal(t, d.RenderCanonicalize("price", ct, 2, true), d.RenderCanonicalizeExpr(d.RenderQuoted("price"), ct, 2, true))
}

func TestRenderChecksumUsesFieldSeparatorAndPrime(t *testing.T) {
	d := New()
	expr := d.RenderChecksum([]string{"a", "b"})
	assert.Contains(t, expr, "CONCAT_WS('"+core.FieldSeparator+"'")
	assert.Contains(t, expr, "BIT_XOR(")
}

func TestCapabilitiesNativeChecksum(t *testing.T) {
	assert.True(t, New().Capabilities().NativeChecksum)
}
