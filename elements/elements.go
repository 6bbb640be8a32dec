// Package elements defines the three-level feature hierarchy used for
// coverage annotation (superset/gene -> set/transcript -> interval/exon)
// and builds it from a flat CCDS-style reference dump.
//
// All coordinates are 1-based and inclusive on both ends, matching the
// reference dump.  Interval identifiers are deterministic
// ("contig-start-end"), so rebuilding from the same dump always yields
// the same ids.
package elements

// Superset is a collection of sets, e.g. a gene.  Start/End span all
// descendant sets.
type Superset struct {
	ID          string
	SecondaryID string
	Contig      string
	Start       int
	End         int
	Strand      string
}

// Set is an ordered collection of intervals under exactly one superset,
// e.g. a transcript.  Start/End span its intervals.
type Set struct {
	ID         string
	Contig     string
	Start      int
	End        int
	Strand     string
	SupersetID string
}

// Interval is the smallest named feature, e.g. an exon.  An interval may
// be shared by several sets; it is stored once and referenced through
// Membership links.
type Interval struct {
	ID     string
	Contig string
	Start  int
	End    int
	Strand string
}

// Len returns the number of bases covered by the interval.  Both
// coordinates are inclusive, hence the +1.
func (iv Interval) Len() int {
	return iv.End - iv.Start + 1
}

// Membership links an interval to one set it belongs to.  First and
// Last are attributes of the link, not of the interval: a shared
// interval can open one transcript and sit mid-way through another.
type Membership struct {
	SetID      string
	IntervalID string
	Start      int
	End        int
	First      bool
	Last       bool
}
