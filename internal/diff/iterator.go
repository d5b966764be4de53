// Package diff implements the two diff algorithms (HashDiff, JoinDiff) and
// the Differ façade that picks between them, validates inputs, and
// exposes a streaming result iterator plus aggregate statistics.
package diff

import (
	"sync"
	"sync/atomic"

	"xdiff/internal/core"
)

// ResultIterator streams diff records lazily. Closing it before reaching
// EOF cancels all outstanding work; polling after a fatal error returns
// the same error every time (§7's idempotent-failure rule).
type ResultIterator struct {
	ch     <-chan core.DiffRecord
	cancel func()
	errPtr *atomic.Value // holds error
	stats  *Stats

	cur  core.DiffRecord
	done bool
}

func newResultIterator(ch <-chan core.DiffRecord, cancel func(), errPtr *atomic.Value, stats *Stats) *ResultIterator {
	return &ResultIterator{ch: ch, cancel: cancel, errPtr: errPtr, stats: stats}
}

// Next advances to the next record. Returns false at EOF or on the first
// error; check Err to distinguish them.
func (it *ResultIterator) Next() bool {
	if it.done {
		return false
	}
	rec, ok := <-it.ch
	if !ok {
		it.done = true
		return false
	}
	it.cur = rec
	if it.stats != nil {
		it.stats.recordEmitted()
	}
	return true
}

// Record returns the current diff record.
func (it *ResultIterator) Record() core.DiffRecord { return it.cur }

// Stats returns a point-in-time snapshot of the run's statistics. Safe to
// call while the diff is still in progress, though counts are most useful
// after Next has returned false.
func (it *ResultIterator) Stats() Stats { return it.stats.Snapshot() }

// Err returns the first fatal error encountered by the diff, if any.
func (it *ResultIterator) Err() error {
	if v := it.errPtr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Close cancels all outstanding queries and drains the channel so no
// worker goroutine blocks forever trying to send.
func (it *ResultIterator) Close() error {
	it.cancel()
	for range it.ch {
		// drain
	}
	it.done = true
	return nil
}

// Stats is the façade's aggregate statistics dictionary (§4.6).
type Stats struct {
	mu                sync.Mutex
	RowsDownloaded    int64
	SegmentsCompared  int64
	MaxRecursionDepth int
	DiffsEmitted      int64
	Algorithm         string
	Where             string
	CaseSensitive     bool
}

func (s *Stats) recordEmitted() {
	s.mu.Lock()
	s.DiffsEmitted++
	s.mu.Unlock()
}

func (s *Stats) addRowsDownloaded(n int64) {
	s.mu.Lock()
	s.RowsDownloaded += n
	s.mu.Unlock()
}

func (s *Stats) addSegmentsCompared(n int64) {
	s.mu.Lock()
	s.SegmentsCompared += n
	s.mu.Unlock()
}

func (s *Stats) noteDepth(depth int) {
	s.mu.Lock()
	if depth > s.MaxRecursionDepth {
		s.MaxRecursionDepth = depth
	}
	s.mu.Unlock()
}

// Snapshot returns a copy safe to read after the diff has finished.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}
