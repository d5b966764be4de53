package db

import "context"

// Pool bounds how many queries run concurrently against one database
// connection pool. Every query issued against a Database passes through
// its Pool; across different databases, pools run independently.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with room for threads concurrent queries. Fewer
// than one is clamped to one, matching the default thread count of §5.
func NewPool(threads int) *Pool {
	if threads < 1 {
		threads = 1
	}
	return &Pool{sem: make(chan struct{}, threads)}
}

// Acquire blocks until a slot is free or ctx is cancelled. Submission into
// a saturated pool is the first of the three suspension points in §5.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (p *Pool) Release() { <-p.sem }
