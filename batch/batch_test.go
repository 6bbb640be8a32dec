package batch

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func scanAll(ivs []Interval, threshold, extension int) []Group {
	sc := NewScanner(ivs, threshold, extension)
	var groups []Group
	for sc.Scan() {
		groups = append(groups, sc.Group())
	}
	return groups
}

func ids(g Group) []string {
	var out []string
	for _, iv := range g.Intervals {
		out = append(out, iv.ID)
	}
	return out
}

func TestScannerThreshold(t *testing.T) {
	ivs := []Interval{
		{5, 15, "a"},
		{5, 20, "b"},
		{25, 30, "c"},
		{30, 65, "d"},
		{60, 82, "e"},
		{83, 88, "f"},
	}
	groups := scanAll(ivs, 30, 0)
	expect.EQ(t, len(groups), 3)

	expect.EQ(t, groups[0].Start, 5)
	expect.EQ(t, groups[0].End, 30)
	expect.EQ(t, ids(groups[0]), []string{"a", "b", "c"})

	expect.EQ(t, groups[1].Start, 30)
	expect.EQ(t, groups[1].End, 65)
	expect.EQ(t, ids(groups[1]), []string{"d"})

	expect.EQ(t, groups[2].Start, 60)
	expect.EQ(t, groups[2].End, 88)
	expect.EQ(t, ids(groups[2]), []string{"e", "f"})
}

func TestScannerSpanAtThreshold(t *testing.T) {
	// A combined span exactly at the threshold still fits in one group.
	groups := scanAll([]Interval{{1, 10, "a"}, {21, 31, "b"}}, 30, 0)
	expect.EQ(t, len(groups), 1)
	expect.EQ(t, groups[0].Start, 1)
	expect.EQ(t, groups[0].End, 31)
}

func TestScannerOversizedInterval(t *testing.T) {
	// One interval wider than the threshold forms a group of its own.
	ivs := []Interval{
		{1, 5, "a"},
		{10, 1000, "wide"},
		{1001, 1005, "b"},
	}
	groups := scanAll(ivs, 50, 0)
	expect.EQ(t, len(groups), 3)
	expect.EQ(t, ids(groups[0]), []string{"a"})
	expect.EQ(t, ids(groups[1]), []string{"wide"})
	expect.EQ(t, groups[1].Start, 10)
	expect.EQ(t, groups[1].End, 1000)
	expect.EQ(t, ids(groups[2]), []string{"b"})
}

func TestScannerExtension(t *testing.T) {
	groups := scanAll([]Interval{{100, 110, "a"}}, 1000, 2)
	expect.EQ(t, len(groups), 1)
	expect.EQ(t, groups[0].Start, 98)
	expect.EQ(t, groups[0].End, 112)
	expect.EQ(t, groups[0].Intervals[0].Start, 98)
	expect.EQ(t, groups[0].Intervals[0].End, 112)
}

func TestScannerExtensionClampsAtOne(t *testing.T) {
	// Extension never pushes a start below position 1.
	groups := scanAll([]Interval{{2, 10, "a"}}, 1000, 5)
	expect.EQ(t, len(groups), 1)
	expect.EQ(t, groups[0].Start, 1)
	expect.EQ(t, groups[0].End, 15)
}

func TestScannerEmpty(t *testing.T) {
	sc := NewScanner(nil, 30, 0)
	expect.False(t, sc.Scan())
}

func TestScannerRunningEnd(t *testing.T) {
	// The group end is the running max, not the last interval's end.
	groups := scanAll([]Interval{{1, 50, "a"}, {10, 20, "b"}}, 1000, 0)
	expect.EQ(t, len(groups), 1)
	expect.EQ(t, groups[0].End, 50)
}
