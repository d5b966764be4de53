package diff

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xdiff/internal/core"
	"xdiff/internal/segment"
)

// Algorithm selects which diff strategy the façade runs.
type Algorithm string

const (
	AlgoAuto     Algorithm = "auto"
	AlgoHashDiff Algorithm = "hashdiff"
	AlgoJoinDiff Algorithm = "joindiff"
)

// Options configures a diff run (§4.6, and the CLI flag surface of §6).
type Options struct {
	Algorithm           Algorithm
	BisectionFactor     int
	BisectionThreshold  int
	AssumeUniqueKey     bool
	Limit               int
	Where               string
	MinAge              *time.Duration // rows updated more recently than MinAge ago are excluded
	MaxAge              *time.Duration // rows updated longer ago than MaxAge are excluded
	CaseSensitive       bool
	SampleExclusiveRows bool
	SampleSize          int
	Materialize         string
	MaterializeAllRows  bool
	TableWriteLimit     int
	Logger              *zap.SugaredLogger
}

// Differ is the façade of §4.6: it validates that two segments describe
// compatible projections, applies the run's shared predicates to both
// sides identically, picks HashDiff or JoinDiff, and runs it.
type Differ struct {
	Opts Options
}

// NewDiffer builds a Differ, filling in the same defaults HashDiffer.Diff
// applies so Opts holds the effective configuration before the algorithm
// itself runs.
func NewDiffer(opts Options) *Differ {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgoAuto
	}
	if opts.BisectionFactor < 2 {
		opts.BisectionFactor = 32
	}
	if opts.BisectionThreshold < 1 {
		opts.BisectionThreshold = 16384
	}
	return &Differ{Opts: opts}
}

// Diff validates segL and segR, applies the run's where/age predicates to
// both sides, chooses an algorithm, and returns its streaming result.
func (d *Differ) Diff(ctx context.Context, segL, segR *segment.TableSegment) (*ResultIterator, error) {
	csL := core.ColumnSet{KeyColumns: segL.KeyColumns, UpdateColumn: segL.UpdateColumn, ExtraColumns: segL.ExtraColumns}
	csR := core.ColumnSet{KeyColumns: segR.KeyColumns, UpdateColumn: segR.UpdateColumn, ExtraColumns: segR.ExtraColumns}
	if err := csL.Compatible(csR); err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	minUpdate, maxUpdate, err := d.ageBounds(segL.UpdateColumn)
	if err != nil {
		return nil, err
	}

	// Each column shared by both schemas is canonicalised at the smaller of
	// the two declared scales.
	minScale := make(map[string]int, len(segL.ColumnTypes))
	for name, ctL := range segL.ColumnTypes {
		if ctR, ok := segR.ColumnTypes[name]; ok {
			minScale[name] = min(ctL.Scale, ctR.Scale)
		}
	}

	applyShared := func(s *segment.TableSegment) *segment.TableSegment {
		return s.Override(func(c *segment.TableSegment) {
			c.Rules.MinScale = minScale
			if d.Opts.Where != "" {
				c.Where = d.Opts.Where
			}
			if minUpdate != nil {
				c.MinUpdate = minUpdate
			}
			if maxUpdate != nil {
				c.MaxUpdate = maxUpdate
			}
			c.AssumeUnique = d.Opts.AssumeUniqueKey
			c.Rules.CaseSensitive = d.Opts.CaseSensitive
		})
	}
	segL = applyShared(segL)
	segR = applyShared(segR)

	algo := d.Opts.Algorithm
	if algo == AlgoAuto {
		algo = d.pickAlgorithm(segL, segR)
	}

	switch algo {
	case AlgoJoinDiff:
		if segL.DB != segR.DB {
			return nil, fmt.Errorf("diff: joindiff requires both segments on the same database connection")
		}
		jd := &JoinDiffer{
			AssumeUniqueKey:     d.Opts.AssumeUniqueKey,
			SampleExclusiveRows: d.Opts.SampleExclusiveRows,
			SampleSize:          d.Opts.SampleSize,
			Materialize:         d.Opts.Materialize,
			MaterializeAllRows:  d.Opts.MaterializeAllRows,
			TableWriteLimit:     d.Opts.TableWriteLimit,
			Logger:              d.Opts.Logger,
		}
		it := jd.Diff(ctx, segL, segR)
		it.stats.Where = d.Opts.Where
		it.stats.CaseSensitive = d.Opts.CaseSensitive
		return it, nil
	default:
		hd := &HashDiffer{
			BisectionFactor:    d.Opts.BisectionFactor,
			BisectionThreshold: d.Opts.BisectionThreshold,
			AssumeUniqueKey:    d.Opts.AssumeUniqueKey,
			Limit:              d.Opts.Limit,
			Logger:             d.Opts.Logger,
		}
		it := hd.Diff(ctx, segL, segR)
		it.stats.Where = d.Opts.Where
		it.stats.CaseSensitive = d.Opts.CaseSensitive
		return it, nil
	}
}

// pickAlgorithm implements the "auto" rule: JoinDiff only applies within a
// single database connection, since it relies on a server-side join.
func (d *Differ) pickAlgorithm(segL, segR *segment.TableSegment) Algorithm {
	if segL.DB == segR.DB {
		return AlgoJoinDiff
	}
	return AlgoHashDiff
}

// ageBounds converts --min-age/--max-age (durations relative to "now") into
// absolute MinUpdate/MaxUpdate bounds. An update column is required when
// either is set.
func (d *Differ) ageBounds(updateColumn string) (min, max *time.Time, err error) {
	if d.Opts.MinAge == nil && d.Opts.MaxAge == nil {
		return nil, nil, nil
	}
	if updateColumn == "" {
		return nil, nil, fmt.Errorf("diff: --min-age/--max-age require an update column")
	}
	now := time.Now().UTC()
	if d.Opts.MaxAge != nil {
		t := now.Add(-*d.Opts.MaxAge)
		min = &t
	}
	if d.Opts.MinAge != nil {
		t := now.Add(-*d.Opts.MinAge)
		max = &t
	}
	return min, max, nil
}

// Summary renders a short human-readable recap of a finished diff, for
// --stats output.
func Summary(stats Stats) string {
	s := stats
	where := s.Where
	if where == "" {
		where = "(none)"
	}
	return fmt.Sprintf(
		"algorithm=%s where=%s rows_downloaded=%d segments_compared=%d max_recursion_depth=%d diffs_emitted=%d",
		s.Algorithm, where, s.RowsDownloaded, s.SegmentsCompared, s.MaxRecursionDepth, s.DiffsEmitted,
	)
}
