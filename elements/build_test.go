package elements

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

// memSink records everything a build emits.
type memSink struct {
	supersets   []Superset
	sets        []Set
	intervals   []Interval
	memberships []Membership
	commits     int
}

func (s *memSink) AddSuperset(ss Superset) error { s.supersets = append(s.supersets, ss); return nil }
func (s *memSink) AddSet(set Set) error          { s.sets = append(s.sets, set); return nil }
func (s *memSink) AddInterval(iv Interval) error { s.intervals = append(s.intervals, iv); return nil }
func (s *memSink) AddMembership(m Membership) error {
	s.memberships = append(s.memberships, m)
	return nil
}
func (s *memSink) Commit() error { s.commits++; return nil }

const ccdsHeader = "#chromosome\tnc_accession\tgene\tgene_id\tccds_id\tccds_status\tcds_strand\tcds_from\tcds_to\tcds_locations\tmatch_type\n"

func writeCCDS(t *testing.T, rows ...string) string {
	t.Helper()
	dir := testutil.GetTmpDir()
	path := filepath.Join(dir, "ccds.txt")
	data := ccdsHeader + strings.Join(rows, "\n") + "\n"
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func row(fields ...string) string { return strings.Join(fields, "\t") }

func TestBuild(t *testing.T) {
	path := writeCCDS(t,
		row("11", "NC_000011.9", "GENA", "1234", "CCDS1.1", "Public", "+", "100", "400", "[100-200, 300-400]", "Identical"),
		row("11", "NC_000011.9", "GENA", "1234", "CCDS2.1", "Public", "+", "100", "500", "[100-200, 450-500]", "Identical"),
		row("11", "NC_000011.9", "GENB", "5678", "CCDS3.1", "Withdrawn", "-", "900", "950", "[900-950]", "Identical"),
	)
	sink := &memSink{}
	stats, err := Build(context.Background(), sink, path)
	assert.NoError(t, err)

	expect.EQ(t, stats, BuildStats{Supersets: 1, Sets: 2, Intervals: 3})
	expect.EQ(t, sink.commits, 1)

	ss := sink.supersets[0]
	expect.EQ(t, ss.ID, "GENA")
	expect.EQ(t, ss.SecondaryID, "1234")
	// Superset span covers both transcripts.
	expect.EQ(t, ss.Start, 100)
	expect.EQ(t, ss.End, 500)

	expect.EQ(t, sink.sets[0].ID, "CCDS1.1")
	expect.EQ(t, sink.sets[0].SupersetID, "GENA")
	expect.EQ(t, sink.sets[1].ID, "CCDS2.1")

	// The shared exon 100-200 is persisted once, linked twice.
	var ids []string
	for _, iv := range sink.intervals {
		ids = append(ids, iv.ID)
	}
	expect.EQ(t, ids, []string{"11-100-200", "11-300-400", "11-450-500"})
	expect.EQ(t, len(sink.memberships), 4)
}

func TestBuildFirstLastFlags(t *testing.T) {
	// Coordinates decide first/last, not list order.
	path := writeCCDS(t,
		row("2", "NC_000002.11", "GENC", "11", "CCDS9.1", "Public", "-", "100", "900", "[500-600, 100-200, 800-900]", "Identical"),
	)
	sink := &memSink{}
	_, err := Build(context.Background(), sink, path)
	assert.NoError(t, err)

	flags := make(map[string][2]bool)
	for _, m := range sink.memberships {
		flags[m.IntervalID] = [2]bool{m.First, m.Last}
	}
	expect.EQ(t, flags["2-100-200"], [2]bool{true, false})
	expect.EQ(t, flags["2-500-600"], [2]bool{false, false})
	expect.EQ(t, flags["2-800-900"], [2]bool{false, true})
}

func TestBuildSexContigPrefix(t *testing.T) {
	// The same gene symbol on X and Y stays two supersets, with
	// contig-prefixed identifiers.
	path := writeCCDS(t,
		row("X", "NC_000023.10", "SHARED", "77", "CCDS100.1", "Public", "+", "10", "50", "[10-50]", "Identical"),
		row("Y", "NC_000024.9", "SHARED", "77", "CCDS200.1", "Public", "+", "10", "50", "[10-50]", "Identical"),
		row("7", "NC_000007.13", "AUTO", "88", "CCDS300.1", "Public", "+", "10", "50", "[10-50]", "Identical"),
	)
	sink := &memSink{}
	stats, err := Build(context.Background(), sink, path)
	assert.NoError(t, err)
	expect.EQ(t, stats.Supersets, 3)

	var ssIDs []string
	for _, ss := range sink.supersets {
		ssIDs = append(ssIDs, ss.ID)
	}
	expect.EQ(t, ssIDs, []string{"AUTO", "X-SHARED", "Y-SHARED"})

	var setIDs []string
	for _, s := range sink.sets {
		setIDs = append(setIDs, s.ID)
	}
	expect.EQ(t, setIDs, []string{"CCDS300.1", "X-CCDS100.1", "Y-CCDS200.1"})

	// Interval ids carry the contig already and are never prefixed.
	var ivIDs []string
	for _, iv := range sink.intervals {
		ivIDs = append(ivIDs, iv.ID)
	}
	expect.EQ(t, ivIDs, []string{"7-10-50", "X-10-50", "Y-10-50"})
}

func TestBuildGzipped(t *testing.T) {
	// Reference dumps usually ship gzipped; decompression is keyed off
	// the file name.
	dir := testutil.GetTmpDir()
	path := filepath.Join(dir, "ccds.txt.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(ccdsHeader +
		row("11", "NC_000011.9", "GENA", "1234", "CCDS1.1", "Public", "+", "100", "200", "[100-200]", "Identical") + "\n"))
	assert.NoError(t, err)
	assert.NoError(t, zw.Close())
	assert.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	sink := &memSink{}
	stats, err := Build(context.Background(), sink, path)
	assert.NoError(t, err)
	expect.EQ(t, stats, BuildStats{Supersets: 1, Sets: 1, Intervals: 1})
	expect.EQ(t, sink.intervals[0].ID, "11-100-200")
}

func TestBuildBadLocationsAborts(t *testing.T) {
	path := writeCCDS(t,
		row("3", "NC_000003.11", "GEND", "9", "CCDS5.1", "Public", "+", "1", "10", "[10-1]", "Identical"),
	)
	_, err := Build(context.Background(), &memSink{}, path)
	expect.True(t, err != nil)
}
