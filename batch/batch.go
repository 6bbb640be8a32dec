// Package batch groups sorted genomic intervals into read windows so
// that one depth-source call can serve many intervals.  Windows are
// bounded by a combined-span threshold: small neighboring exons share a
// window, while a large intron between them closes it.
package batch

// Interval is one leaf interval to be batched.  Coordinates are 1-based
// inclusive and must arrive sorted by Start.
type Interval struct {
	Start int
	End   int
	ID    string
}

// Group is one read window.  Start/End is the running combined span of
// the member intervals (after extension), so a single depth-source read
// of [Start, End] covers every member.
type Group struct {
	Start     int
	End       int
	Intervals []Interval
}

// Scanner produces groups one at a time from a sorted interval list.
// Usage follows the usual pattern:
//
//	sc := batch.NewScanner(intervals, threshold, extension)
//	for sc.Scan() {
//		g := sc.Group()
//		...
//	}
//
// The full grouping is never materialized; memory use is bounded by the
// largest single group.
type Scanner struct {
	intervals []Interval
	threshold int
	extension int
	pos       int
	cur       Group
}

// NewScanner returns a Scanner over intervals, which must be sorted by
// Start.  Each interval is widened by extension on both sides before
// grouping (e.g. to capture splice-site flanks); extended starts are
// clamped at 1.  A group is closed once appending the next interval
// would push End-Start beyond threshold; a single interval wider than
// the threshold still forms a group of its own.
func NewScanner(intervals []Interval, threshold, extension int) *Scanner {
	return &Scanner{intervals: intervals, threshold: threshold, extension: extension}
}

func (s *Scanner) extend(iv Interval) Interval {
	iv.Start -= s.extension
	if iv.Start < 1 {
		iv.Start = 1
	}
	iv.End += s.extension
	return iv
}

// Scan advances to the next group, returning false when the input is
// exhausted.
func (s *Scanner) Scan() bool {
	if s.pos >= len(s.intervals) {
		return false
	}
	first := s.extend(s.intervals[s.pos])
	s.pos++
	s.cur = Group{Start: first.Start, End: first.End, Intervals: []Interval{first}}
	for s.pos < len(s.intervals) {
		iv := s.extend(s.intervals[s.pos])
		end := s.cur.End
		if iv.End > end {
			end = iv.End
		}
		// The threshold applies to the combined span, not the interval
		// itself: a long intron closes the window even between short
		// exons.
		if end-s.cur.Start > s.threshold {
			return true
		}
		s.cur.End = end
		s.cur.Intervals = append(s.cur.Intervals, iv)
		s.pos++
	}
	return true
}

// Group returns the group found by the last call to Scan.  The returned
// slice is only valid until the next Scan.
func (s *Scanner) Group() Group {
	return s.cur
}
