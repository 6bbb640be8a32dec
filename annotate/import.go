package annotate

import (
	"io"

	"github.com/clinseq/excov/store"
	"github.com/grailbio/base/log"
)

// flushEvery bounds the number of statistic records held in one open
// transaction during import.
const flushEvery = 5000

// Import persists an exchange stream: the sample record, one leaf
// statistic per data line, then the set and superset rollups.  The
// returned metadata is the stream's parsed header.
func Import(db *store.DB, r io.Reader) (Metadata, error) {
	var (
		meta    Metadata
		pending int
		total   int
	)
	_, err := readExchange(r,
		func(m Metadata) error {
			meta = m
			return db.AddSample(store.Sample{
				ID:             m.SampleID,
				GroupID:        m.GroupID,
				Cutoff:         m.Cutoff,
				Extension:      m.Extension,
				CoverageSource: m.CoverageSource,
				ElementSource:  m.ElementSource,
			})
		},
		func(row exchangeRow) error {
			err := db.AddIntervalData(store.Data{
				ParentID:     row.ID,
				SampleID:     meta.SampleID,
				GroupID:      meta.GroupID,
				Coverage:     row.Coverage,
				Completeness: row.Completeness,
			})
			if err != nil {
				return err
			}
			total++
			if pending++; pending >= flushEvery {
				pending = 0
				return db.Flush()
			}
			return nil
		})
	if err != nil {
		return meta, err
	}
	if err := db.Flush(); err != nil {
		return meta, err
	}
	log.Printf("import: sample %s: %d interval records", meta.SampleID, total)
	return meta, Extend(db, meta.SampleID, meta.GroupID)
}

// Extend computes and persists the rollups for one sample: interval
// statistics up to sets, then sets up to supersets.  The set records
// are flushed before the superset pass reads them.
func Extend(db *store.DB, sampleID, groupID string) error {
	sets, err := db.SetStats(sampleID)
	if err != nil {
		return err
	}
	for _, s := range sets {
		err := db.AddSetData(store.Data{
			ParentID:     s.ParentID,
			SampleID:     sampleID,
			GroupID:      groupID,
			Coverage:     s.Coverage,
			Completeness: s.Completeness,
		})
		if err != nil {
			return err
		}
	}
	if err := db.Flush(); err != nil {
		return err
	}
	supersets, err := db.SupersetStats(sampleID)
	if err != nil {
		return err
	}
	for _, s := range supersets {
		err := db.AddSupersetData(store.Data{
			ParentID:     s.ParentID,
			SampleID:     sampleID,
			GroupID:      groupID,
			Coverage:     s.Coverage,
			Completeness: s.Completeness,
		})
		if err != nil {
			return err
		}
	}
	if err := db.Flush(); err != nil {
		return err
	}
	log.Printf("import: sample %s: %d sets, %d supersets extended", sampleID, len(sets), len(supersets))
	return nil
}
