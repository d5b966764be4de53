package diff

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"xdiff/internal/core"
	"xdiff/internal/segment"
)

// HashDiffer implements the cross-database checksum-bisection algorithm
// (§4.4): recursive bisection over two TableSegments on two databases,
// downloading and aligning rows only where checksums disagree.
type HashDiffer struct {
	BisectionFactor    int
	BisectionThreshold int
	AssumeUniqueKey    bool
	Limit              int // 0 means unbounded
	Logger             *zap.SugaredLogger
}

// Diff returns a lazy sequence of (sign, row) diff records for segL vs
// segR. Both segments must share the same projection shape; callers
// validate that via core.ColumnSet.Compatible before calling Diff.
func (hd *HashDiffer) Diff(ctx context.Context, segL, segR *segment.TableSegment) *ResultIterator {
	if hd.BisectionFactor < 2 {
		hd.BisectionFactor = 32
	}
	if hd.BisectionThreshold < 1 {
		hd.BisectionThreshold = 16384
	}
	logger := hd.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan core.DiffRecord, 256)
	errPtr := &atomic.Value{}
	stats := &Stats{Algorithm: "hashdiff"}
	var emitted int64
	var wg sync.WaitGroup

	var failOnce sync.Once
	fail := func(err error) {
		failOnce.Do(func() { errPtr.Store(err) })
		cancel()
	}

	emit := func(rec core.DiffRecord) bool {
		if hd.Limit > 0 && atomic.AddInt64(&emitted, 1) > int64(hd.Limit) {
			cancel()
			return false
		}
		select {
		case out <- rec:
			return true
		case <-ctx.Done():
			return false
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		boundedL, boundedR, err := hd.boundSegments(ctx, segL, segR)
		if err != nil {
			fail(err)
			return
		}
		if !hd.AssumeUniqueKey {
			if err := hd.checkUnique(ctx, boundedL, boundedR); err != nil {
				fail(err)
				return
			}
		}
		hd.bisect(ctx, boundedL, boundedR, 0, &wg, emit, fail, logger, stats)
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return newResultIterator(out, cancel, errPtr, stats)
}

// boundSegments resolves MIN/MAX on both sides in parallel when either
// segment is unbounded, per §4.4 step 1.
func (hd *HashDiffer) boundSegments(ctx context.Context, segL, segR *segment.TableSegment) (*segment.TableSegment, *segment.TableSegment, error) {
	if segL.Bounded() && segR.Bounded() {
		return segL, segR, nil
	}
	if len(segL.KeyColumns) != 1 {
		return nil, nil, fmt.Errorf("diff: automatic bounding requires a single key column; provide MinKey/MaxKey explicitly for composite keys")
	}

	type bound struct {
		min, max core.Value
		err      error
	}
	results := make([]bound, 2)
	var wg sync.WaitGroup
	for i, s := range []*segment.TableSegment{segL, segR} {
		wg.Add(1)
		go func(i int, s *segment.TableSegment) {
			defer wg.Done()
			minV, err := s.DB.Scalar(ctx, fmt.Sprintf("SELECT MIN(%s) FROM %s", quoted(s), tableRef(s)))
			if err != nil {
				results[i] = bound{err: err}
				return
			}
			maxV, err := s.DB.Scalar(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", quoted(s), tableRef(s)))
			results[i] = bound{min: minV, max: maxV, err: err}
		}(i, s)
	}
	wg.Wait()
	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
	}

	minKey := minValue(results[0].min, results[1].min)
	maxKey := maxValue(results[0].max, results[1].max)
	maxKeyExclusive := incrementKey(maxKey)

	apply := func(s *segment.TableSegment) *segment.TableSegment {
		return s.Override(func(c *segment.TableSegment) {
			if c.MinKey == nil {
				c.MinKey = core.Key{minKey}
			}
			if c.MaxKey == nil {
				c.MaxKey = core.Key{maxKeyExclusive}
			}
		})
	}
	return apply(segL), apply(segR), nil
}

func (hd *HashDiffer) checkUnique(ctx context.Context, segL, segR *segment.TableSegment) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, s := range []*segment.TableSegment{segL, segR} {
		wg.Add(1)
		go func(i int, s *segment.TableSegment) {
			defer wg.Done()
			errs[i] = checkSegmentUnique(ctx, s)
		}(i, s)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// bisect implements §4.4 step 3: the recursive divide-and-conquer core.
func (hd *HashDiffer) bisect(
	ctx context.Context,
	segL, segR *segment.TableSegment,
	depth int,
	wg *sync.WaitGroup,
	emit func(core.DiffRecord) bool,
	fail func(error),
	logger *zap.SugaredLogger,
	stats *Stats,
) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	stats.noteDepth(depth)
	stats.addSegmentsCompared(1)

	countL, err := segL.Count(ctx)
	if err != nil {
		fail(err)
		return
	}
	countR, err := segR.Count(ctx)
	if err != nil {
		fail(err)
		return
	}
	if countL == 0 && countR == 0 {
		return // clean by definition
	}

	if countL <= int64(hd.BisectionThreshold) && countR <= int64(hd.BisectionThreshold) {
		if err := downloadAndAlign(ctx, segL, segR, emit, stats); err != nil {
			fail(err)
		}
		return
	}

	checksumL, checksumR, err := parallelChecksum(ctx, segL, segR)
	if err != nil {
		fail(err)
		return
	}
	if countL == countR && checksumL.count == checksumR.count && checksumL.sum == checksumR.sum {
		logger.Debugw("segment clean", "depth", depth, "keyL", segL.MinKey, "keyR", segR.MinKey)
		return
	}
	logger.Debugw("segment differs", "depth", depth, "keyL", segL.MinKey, "keyR", segR.MinKey, "countL", countL, "countR", countR)

	// Pick checkpoints on the side with the larger count: more
	// informative quantiles, per §4.4.
	larger, smaller := segL, segR
	if countR > countL {
		larger, smaller = segR, segL
	}
	checkpoints, err := larger.ChooseCheckpoints(ctx, hd.BisectionFactor)
	if err != nil {
		fail(err)
		return
	}
	childrenLarger := larger.SegmentByCheckpoints(checkpoints)
	childrenSmaller := smaller.SegmentByCheckpoints(checkpoints)
	if len(childrenLarger) != len(childrenSmaller) {
		fail(fmt.Errorf("diff: checkpoint segmentation produced mismatched child counts: %d vs %d", len(childrenLarger), len(childrenSmaller)))
		return
	}

	for i := range childrenLarger {
		childL, childR := childrenLarger[i], childrenSmaller[i]
		if larger == segR {
			childL, childR = childrenSmaller[i], childrenLarger[i]
		}
		wg.Add(1)
		go func(childL, childR *segment.TableSegment) {
			defer wg.Done()
			hd.bisect(ctx, childL, childR, depth+1, wg, emit, fail, logger, stats)
		}(childL, childR)
	}
}

type checksumResult struct {
	count int64
	sum   core.Checksum
}

func parallelChecksum(ctx context.Context, segL, segR *segment.TableSegment) (checksumResult, checksumResult, error) {
	var l, r checksumResult
	var errL, errR error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.count, l.sum, errL = segL.CountAndChecksum(ctx)
	}()
	go func() {
		defer wg.Done()
		r.count, r.sum, errR = segR.CountAndChecksum(ctx)
	}()
	wg.Wait()
	if errL != nil {
		return l, r, errL
	}
	if errR != nil {
		return l, r, errR
	}
	return l, r, nil
}

func checkSegmentUnique(ctx context.Context, s *segment.TableSegment) error {
	total, err := s.Count(ctx)
	if err != nil {
		return err
	}
	distinct, err := s.DB.Scalar(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoted(s), tableRef(s)))
	if err != nil {
		return err
	}
	if toInt64(distinct) != total {
		return fmt.Errorf("%w: table %q", core.ErrUniquenessViolation, s.Table)
	}
	return nil
}
