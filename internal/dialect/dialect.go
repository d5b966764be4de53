// Package dialect provides a unified interface for per-database SQL
// rendering: typed casts, the checksum expression, canonicalisation,
// quoting, and limit/offset. Concrete adapters (mysql, postgres, sqlite,
// mssql) self-register into a URI-scheme registry from their init(), the
// same pattern the teacher project uses to register dialect generators and
// schema introspecters.
package dialect

import (
	"fmt"
	"sync"

	"xdiff/internal/core"
)

// Capabilities advertises optional features a dialect adapter supports, so
// callers can pick a fallback strategy instead of guessing from the name.
type Capabilities struct {
	ApproxMedian     bool
	TableSample      bool
	MaterializedCTAS bool
	// NativeChecksum reports whether RenderChecksum produces a single
	// server-side aggregate. When false, the caller fetches the
	// canonicalised columns for every row in the segment and folds them
	// into a core.Checksum in Go via core.SegmentChecksum instead of
	// trusting a SQL-side hash/XOR aggregate the dialect cannot express.
	NativeChecksum bool
}

// Dialect renders the SQL fragments the segment tree and both diff
// algorithms need. Every method is pure: it returns SQL text, it never
// touches a connection.
type Dialect interface {
	// Name identifies the dialect, e.g. "mysql".
	Name() string

	// RenderChecksum returns a SQL expression computing a checksum over a
	// group of rows: an MD5 (or dialect-equivalent) hash of the
	// separator-joined canonicalised exprs, parsed from hex, reduced
	// modulo core.Checksum64Prime, and XOR-aggregated across the group.
	RenderChecksum(canonicalExprs []string) string

	// RenderCanonicalize returns a SQL expression coercing column to its
	// canonical string form, given the minimum scale/precision agreed
	// across both sides of the diff (0 when not applicable) and whether
	// text comparison is case sensitive.
	RenderCanonicalize(column string, ct core.ColumnType, minScale int, caseSensitive bool) string

	// RenderCanonicalizeExpr is RenderCanonicalize for a caller-supplied,
	// already-quoted-and-qualified SQL expression (e.g. "xl"."amount")
	// instead of a bare column name, for query shapes such as JoinDiff's
	// multi-alias join that RenderCanonicalize's single RenderQuoted(column)
	// can't express.
	RenderCanonicalizeExpr(expr string, ct core.ColumnType, minScale int, caseSensitive bool) string

	// RenderQuoted quotes an identifier using this dialect's quoting
	// convention (backticks, double quotes, brackets, ...).
	RenderQuoted(identifier string) string

	// RenderLimit returns a trailing LIMIT clause.
	RenderLimit(n int) string

	// RenderOffsetLimit returns a trailing OFFSET/LIMIT clause pair.
	RenderOffsetLimit(offset, n int) string

	// RenderType maps a canonical type name (e.g. "bigint") to this
	// dialect's spelling.
	RenderType(name string) string

	// SchemaQuery returns a query that selects exactly four columns,
	// (column_name, data_type, numeric_precision, numeric_scale), one row
	// per column of table, in ordinal position order. Keeping the
	// projection identical across dialects lets the caller scan the
	// result generically.
	SchemaQuery(schema, table string) string

	// Capabilities reports optional features.
	Capabilities() Capabilities

	// DriverName is the database/sql driver name to pass to sql.Open.
	DriverName() string
}

// Factory builds a Dialect instance. Adapters are typically stateless, so
// Factory usually just returns a shared value, but the signature mirrors
// the teacher's registry so adapters may carry per-instance config later.
type Factory func() Dialect

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register adds a dialect adapter under a URI scheme prefix (e.g. "mysql",
// "postgres", "postgresql", "sqlite", "mssql", "sqlserver"). Called from
// each adapter package's init().
func Register(scheme string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[scheme] = f
}

// Get resolves a URI scheme to a Dialect instance.
func Get(scheme string) (Dialect, error) {
	mu.RLock()
	f, ok := registry[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedDialect, scheme)
	}
	return f(), nil
}

// Schemes lists every currently registered URI scheme, in no particular
// order.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
