// Package db implements the query dispatch runtime (§4.3): a bounded
// worker pool per database, lazy row streaming, and cooperative
// cancellation, sitting on top of database/sql and the dialect registry.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/dialect"
)

// Database is the abstract interface the segment tree and diff algorithms
// consume (§6). Connections are owned by their worker pool and never
// shared across pools.
type Database interface {
	// Query runs sqlText and returns a lazy row stream honouring
	// cancellation and the pool's concurrency bound.
	Query(ctx context.Context, sqlText string) (RowStream, error)

	// Scalar runs sqlText expecting exactly one row with one column and
	// returns its value, for COUNT/MIN/MAX-style queries.
	Scalar(ctx context.Context, sqlText string) (core.Value, error)

	// SelectSchema returns the declared type, precision and scale of
	// every column of path, keyed by column name.
	SelectSchema(ctx context.Context, schema, table string) (map[string]core.ColumnType, error)

	// Dialect returns this database's SQL-rendering adapter.
	Dialect() dialect.Dialect

	// Exec runs a statement that returns no rows (DDL, materialisation).
	Exec(ctx context.Context, sqlText string) error

	// Close releases the underlying connection pool.
	Close() error
}

type sqlDatabase struct {
	conn *sql.DB
	d    dialect.Dialect
	pool *Pool
}

// Connect opens uri with the dialect named by its scheme, using threads as
// the bound on concurrent queries against it. Connection-string parsing
// beyond splitting off the scheme is intentionally thin: spec.md §1 scopes
// driver-specific DSN translation out of the core as an external concern.
func Connect(ctx context.Context, uri string, threads int) (Database, error) {
	scheme, rest, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	d, err := dialect.Get(scheme)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(d.DriverName(), rest)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", d.Name(), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: ping %s: %w", d.Name(), err)
	}
	return &sqlDatabase{conn: conn, d: d, pool: NewPool(threads)}, nil
}

func splitURI(uri string) (scheme, rest string, err error) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", "", fmt.Errorf("db: malformed uri %q: missing scheme", uri)
	}
	return uri[:i], uri[i+3:], nil
}

func (db *sqlDatabase) Dialect() dialect.Dialect { return db.d }

func (db *sqlDatabase) Query(ctx context.Context, sqlText string) (RowStream, error) {
	if err := db.pool.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w", core.ErrCancelled)
	}
	rows, err := db.conn.QueryContext(ctx, sqlText)
	if err != nil {
		db.pool.Release()
		return nil, fmt.Errorf("db: query: %w", err)
	}
	return newSQLRowStream(ctx, rows, db.pool.Release), nil
}

func (db *sqlDatabase) Scalar(ctx context.Context, sqlText string) (core.Value, error) {
	stream, err := db.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("db: scalar query returned no rows")
	}
	values := stream.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("db: scalar query returned no columns")
	}
	return values[0], nil
}

func (db *sqlDatabase) SelectSchema(ctx context.Context, schema, table string) (map[string]core.ColumnType, error) {
	stream, err := db.Query(ctx, db.d.SchemaQuery(schema, table))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	cols := make(map[string]core.ColumnType)
	for stream.Next() {
		v := stream.Values()
		if len(v) != 4 {
			return nil, fmt.Errorf("db: schema query returned %d columns, want 4", len(v))
		}
		name := fmt.Sprint(v[0])
		cols[name] = core.ColumnType{
			Name:      name,
			Declared:  fmt.Sprint(v[1]),
			Precision: toInt(v[2]),
			Scale:     toInt(v[3]),
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("db: %w: table %q has no columns or does not exist", core.ErrSchemaIncompatible, table)
	}
	return cols, nil
}

func (db *sqlDatabase) Exec(ctx context.Context, sqlText string) error {
	if err := db.pool.Acquire(ctx); err != nil {
		return fmt.Errorf("%w", core.ErrCancelled)
	}
	defer db.pool.Release()
	_, err := db.conn.ExecContext(ctx, sqlText)
	if err != nil {
		return fmt.Errorf("db: exec: %w", err)
	}
	return nil
}

func (db *sqlDatabase) Close() error { return db.conn.Close() }

// toInt coerces a schema-catalog scalar (numeric_precision/numeric_scale)
// to int. MySQL's text protocol returns these as []byte rather than
// int64/float64, and normalizeValue turns []byte into string before it
// ever reaches here, so both must be parsed rather than dropped to zero.
func toInt(v core.Value) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	case []byte:
		n, _ := strconv.Atoi(strings.TrimSpace(string(t)))
		return n
	default:
		return 0
	}
}
