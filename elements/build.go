package elements

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
)

// Sink receives hierarchy records during a build.  Commit marks a
// durability checkpoint; the builder calls it periodically and once at
// the end.
type Sink interface {
	AddSuperset(Superset) error
	AddSet(Set) error
	AddInterval(Interval) error
	AddMembership(Membership) error
	Commit() error
}

// BuildStats reports what a build produced.  Intervals counts unique
// intervals, not membership links.
type BuildStats struct {
	Supersets int
	Sets      int
	Intervals int
}

// commitEvery is the number of superset groups between durability
// checkpoints during a build.
const commitEvery = 3000

func isSexContig(contig string) bool {
	return contig == "X" || contig == "Y"
}

// prefixID disambiguates identifiers that collide between the sex
// contigs and autosomes (around 20 genes live on both X and Y under the
// same symbol).
func prefixID(contig, id string) string {
	if isSexContig(contig) {
		return contig + "-" + id
	}
	return id
}

// Build reads the reference dump at path and writes the feature
// hierarchy to sink.  Rows with a non-Public status are dropped.  A row
// whose coordinate string fails to parse aborts the whole build; the
// caller is expected to restart against a fresh store.
func Build(ctx context.Context, sink Sink, path string) (BuildStats, error) {
	rows, err := readCCDS(ctx, path)
	if err != nil {
		return BuildStats{}, err
	}
	log.Printf("elements.Build: %d public rows from %s", len(rows), path)

	// The sex contigs are handled separately so that their prefixed
	// identifiers never interleave with autosomal groups during the
	// linear grouping pass.
	var autosomal, sex []ccdsRow
	for _, row := range rows {
		if isSexContig(row.Chromosome) {
			sex = append(sex, row)
		} else {
			autosomal = append(autosomal, row)
		}
	}

	b := builder{sink: sink, seen: make(map[string]bool)}
	if err := b.run(autosomal); err != nil {
		return b.stats, err
	}
	if err := b.run(sex); err != nil {
		return b.stats, err
	}
	if err := sink.Commit(); err != nil {
		return b.stats, err
	}
	log.Printf("elements.Build: created %d supersets, %d sets, %d intervals",
		b.stats.Supersets, b.stats.Sets, b.stats.Intervals)
	return b.stats, nil
}

type builder struct {
	sink   Sink
	seen   map[string]bool // interval ids already persisted, across the whole build
	stats  BuildStats
	groups int // superset groups since the last checkpoint
}

func (b *builder) run(rows []ccdsRow) error {
	if len(rows) == 0 {
		return nil
	}
	// The dump arrives sorted by gene; the stable re-sort only breaks
	// ties by contig so X and Y copies of a shared symbol end up in
	// separate runs.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Gene != rows[j].Gene {
			return rows[i].Gene < rows[j].Gene
		}
		return rows[i].Chromosome < rows[j].Chromosome
	})

	groupStart := 0
	key := prefixID(rows[0].Chromosome, rows[0].Gene)
	for i := 1; i < len(rows); i++ {
		k := prefixID(rows[i].Chromosome, rows[i].Gene)
		if k == key {
			continue
		}
		if err := b.group(rows[groupStart:i]); err != nil {
			return err
		}
		groupStart, key = i, k
	}
	return b.group(rows[groupStart:])
}

// group emits one superset and its sets/intervals from consecutive rows
// sharing a top-level identifier.  Rows in a group are assumed to agree
// on strand and secondary id; the first row wins.
func (b *builder) group(rows []ccdsRow) error {
	first := rows[0]
	ss := Superset{
		ID:          prefixID(first.Chromosome, first.Gene),
		SecondaryID: first.GeneID,
		Contig:      first.Chromosome,
		Start:       first.CDSFrom,
		End:         first.CDSTo,
		Strand:      first.CDSStrand,
	}
	for _, row := range rows[1:] {
		if row.CDSFrom < ss.Start {
			ss.Start = row.CDSFrom
		}
		if row.CDSTo > ss.End {
			ss.End = row.CDSTo
		}
	}
	if err := b.sink.AddSuperset(ss); err != nil {
		return err
	}
	b.stats.Supersets++

	for _, row := range rows {
		if err := b.set(row, ss.ID); err != nil {
			return err
		}
	}

	b.groups++
	if b.groups%commitEvery == 0 {
		return b.sink.Commit()
	}
	return nil
}

func (b *builder) set(row ccdsRow, supersetID string) error {
	set := Set{
		ID:         prefixID(row.Chromosome, row.CCDSID),
		Contig:     row.Chromosome,
		Start:      row.CDSFrom,
		End:        row.CDSTo,
		Strand:     row.CDSStrand,
		SupersetID: supersetID,
	}
	if err := b.sink.AddSet(set); err != nil {
		return err
	}
	b.stats.Sets++

	locs, err := parseLocations(row.Locations)
	if err != nil {
		return err
	}
	// First/last are decided by coordinates, not list order, so an
	// unsorted coordinate string still marks the right links.
	firstIdx, lastIdx := 0, 0
	for i, loc := range locs {
		if loc[0] < locs[firstIdx][0] {
			firstIdx = i
		}
		if loc[1] > locs[lastIdx][1] {
			lastIdx = i
		}
	}
	for i, loc := range locs {
		id := IntervalID(row.Chromosome, loc[0], loc[1])
		if !b.seen[id] {
			iv := Interval{
				ID:     id,
				Contig: row.Chromosome,
				Start:  loc[0],
				End:    loc[1],
				Strand: row.CDSStrand,
			}
			if err := b.sink.AddInterval(iv); err != nil {
				return err
			}
			b.seen[id] = true
			b.stats.Intervals++
		}
		m := Membership{
			SetID:      set.ID,
			IntervalID: id,
			Start:      loc[0],
			End:        loc[1],
			First:      i == firstIdx,
			Last:       i == lastIdx,
		}
		if err := b.sink.AddMembership(m); err != nil {
			return err
		}
	}
	return nil
}
