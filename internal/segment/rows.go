package segment

import (
	"xdiff/internal/core"
	"xdiff/internal/db"
)

// RowIterator adapts a db.RowStream's flat value slices into core.Row
// values, splitting them back into key / update / extra according to the
// projection the segment queried with.
type RowIterator struct {
	stream    db.RowStream
	numKey    int
	hasUpdate bool
	cur       core.Row
}

// Next advances to the next row.
func (it *RowIterator) Next() bool {
	if !it.stream.Next() {
		return false
	}
	values := it.stream.Values()
	key := core.Key(values[:it.numKey])
	rest := values[it.numKey:]

	var update core.Value
	if it.hasUpdate {
		update = rest[0]
		rest = rest[1:]
	}
	it.cur = core.Row{Key: append(core.Key{}, key...), Update: update, Extra: append([]core.Value{}, rest...)}
	return true
}

// Row returns the current row.
func (it *RowIterator) Row() core.Row { return it.cur }

// Err returns the first error encountered, if any.
func (it *RowIterator) Err() error { return it.stream.Err() }

// Close cancels the underlying query stream.
func (it *RowIterator) Close() error { return it.stream.Close() }
