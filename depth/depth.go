// Package depth defines the read-depth source contract and reduces raw
// depth arrays to per-interval coverage and completeness statistics.
package depth

import (
	"github.com/clinseq/excov/batch"
)

// Source returns per-base read depth for a contiguous genomic interval.
// Read takes 1-based inclusive coordinates and returns one value per
// base, len(depths) == end-start+1.  Positions without any aligned read
// are 0, not omitted.  Requesting an unknown contig is an error, never
// silently empty.
type Source interface {
	Read(contig string, start, end int) ([]int32, error)
	Close() error
}

// Stat is the reduced statistic for one interval of a batch.
type Stat struct {
	IntervalID   string
	Coverage     float64
	Completeness float64
}

// Reduce computes mean coverage and completeness for one depth slice.
// Completeness is the fraction of positions with depth >= cutoff.  An
// empty slice reduces to (0, 0) rather than dividing by zero.  Summation
// is integral, so the result is deterministic.
func Reduce(depths []int32, cutoff int) (coverage, completeness float64) {
	if len(depths) == 0 {
		return 0, 0
	}
	var sum int64
	var passed int
	for _, d := range depths {
		sum += int64(d)
		if int(d) >= cutoff {
			passed++
		}
	}
	n := float64(len(depths))
	return float64(sum) / n, float64(passed) / n
}

// ReduceGroup reduces the depth array covering a whole batch into one
// Stat per member interval.  depths must span [g.Start, g.End]
// inclusive, in order; member coordinates are translated to relative
// offsets into it.  A member that falls entirely outside the array
// yields a zero Stat (guard, not an error).
func ReduceGroup(g batch.Group, depths []int32, cutoff int) []Stat {
	stats := make([]Stat, 0, len(g.Intervals))
	for _, iv := range g.Intervals {
		relStart := iv.Start - g.Start
		relEnd := iv.End - g.Start
		var slice []int32
		if relStart >= 0 && relStart <= relEnd && relEnd < len(depths) {
			slice = depths[relStart : relEnd+1]
		}
		cov, comp := Reduce(slice, cutoff)
		stats = append(stats, Stat{IntervalID: iv.ID, Coverage: cov, Completeness: comp})
	}
	return stats
}
