package db

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/google/uuid"

	"xdiff/internal/core"
)

// RowStream is a pull-based, lazy row iterator. Consumers call Next/Values
// at their own pace; the underlying worker goroutine blocks on a bounded
// channel when the consumer falls behind, giving backpressure for free.
type RowStream interface {
	// Next advances to the next row, returning false at end of stream or
	// on error (distinguish with Err).
	Next() bool
	// Values returns the current row's scalar values.
	Values() []core.Value
	// Err returns the first error encountered, if any.
	Err() error
	// Close cancels the underlying query and waits for its cursor to be
	// released. Safe to call multiple times and before reaching EOF.
	Close() error
}

type rowOrErr struct {
	values []core.Value
	err    error
}

type sqlRowStream struct {
	ch     chan rowOrErr
	cancel context.CancelFunc
	done   chan struct{}

	cur []core.Value
	err error
}

func newSQLRowStream(ctx context.Context, rows *sql.Rows, release func()) *sqlRowStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &sqlRowStream{
		ch:     make(chan rowOrErr, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(ctx, rows, release)
	return s
}

func (s *sqlRowStream) pump(ctx context.Context, rows *sql.Rows, release func()) {
	defer close(s.done)
	defer close(s.ch)
	defer release()
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		s.emit(ctx, rowOrErr{err: err})
		return
	}
	n := len(cols)

	for rows.Next() {
		dest := make([]any, n)
		ptrs := make([]any, n)
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.emit(ctx, rowOrErr{err: err})
			return
		}
		values := make([]core.Value, n)
		for i, v := range dest {
			values[i] = normalizeValue(v)
		}
		if !s.emit(ctx, rowOrErr{values: values}) {
			return
		}
	}
	if err := rows.Err(); err != nil {
		s.emit(ctx, rowOrErr{err: err})
	}
}

// emit pushes item onto the channel, returning false if ctx was cancelled
// first (the pump then stops pulling more rows from the driver).
func (s *sqlRowStream) emit(ctx context.Context, item rowOrErr) bool {
	select {
	case s.ch <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *sqlRowStream) Next() bool {
	item, ok := <-s.ch
	if !ok {
		return false
	}
	if item.err != nil {
		s.err = item.err
		return false
	}
	s.cur = item.values
	return true
}

func (s *sqlRowStream) Values() []core.Value { return s.cur }
func (s *sqlRowStream) Err() error           { return s.err }

func (s *sqlRowStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// normalizeValue coerces a database/sql scan destination into the core
// domain's Value set: int64, float64, string, bool, *big.Int, or nil.
// Byte slices (most drivers return TEXT/VARCHAR as []byte) become string.
func normalizeValue(v any) core.Value {
	switch t := v.(type) {
	case []byte:
		return normalizeUUIDString(string(t))
	case string:
		return normalizeUUIDString(t)
	case int64, float64, bool, nil:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case *big.Int:
		return t
	default:
		return t
	}
}

// normalizeUUIDString canonicalises a UUID key or column value to its
// lowercase hyphenated form, so a uniqueidentifier column read back
// uppercase on one dialect still compares equal to a lowercase CHAR(36) on
// another. Non-UUID strings pass through unchanged.
func normalizeUUIDString(s string) string {
	id, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return id.String()
}
