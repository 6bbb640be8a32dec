package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/clinseq/excov/elements"
	"github.com/grailbio/base/errors"
)

// Stat is one row of a rollup query: the aggregated coverage and
// completeness for a parent feature.
type Stat struct {
	ParentID     string
	Coverage     float64
	Completeness float64
}

// scan enumerates all records whose key starts with prefix, in key
// order.
func (db *DB) scan(prefix []byte, fn func(key, val []byte) error) error {
	en, _, err := db.kv.Seek(prefix)
	if err != nil {
		return err
	}
	for {
		k, v, err := en.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
}

func (db *DB) get(k []byte, v interface{}) (bool, error) {
	val, err := db.kv.Get(nil, k)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	return true, json.Unmarshal(val, v)
}

// Superset fetches one superset by id.
func (db *DB) Superset(id string) (elements.Superset, error) {
	var ss elements.Superset
	ok, err := db.get(skey(kindSuperset, id), &ss)
	if err == nil && !ok {
		err = errors.E(errors.NotExist, fmt.Sprintf("store: superset %q", id))
	}
	return ss, err
}

// Set fetches one set by id.
func (db *DB) Set(id string) (elements.Set, error) {
	var s elements.Set
	ok, err := db.get(skey(kindSet, id), &s)
	if err == nil && !ok {
		err = errors.E(errors.NotExist, fmt.Sprintf("store: set %q", id))
	}
	return s, err
}

// Sample fetches one sample record by id.
func (db *DB) Sample(id string) (Sample, error) {
	var s Sample
	ok, err := db.get(skey(kindSample, id), &s)
	if err == nil && !ok {
		err = errors.E(errors.NotExist, fmt.Sprintf("store: sample %q", id))
	}
	return s, err
}

// IntervalsByContig returns a contig's intervals sorted by start
// position (then end), straight off the key order.
func (db *DB) IntervalsByContig(contig string) ([]elements.Interval, error) {
	prefix := append(skey(kindInterval, contig), 0)
	var ivs []elements.Interval
	err := db.scan(prefix, func(_, val []byte) error {
		var iv elements.Interval
		if err := json.Unmarshal(val, &iv); err != nil {
			return err
		}
		ivs = append(ivs, iv)
		return nil
	})
	return ivs, err
}

// SetStats aggregates interval statistics up to set level for one
// sample: a length-weighted mean, so a 90-base exon moves its
// transcript nine times as much as a 10-base one.  One ordered scan of
// the membership records, grouped by set id; intervals without a
// statistic record for the sample drop out of the aggregate (inner-join
// semantics).
func (db *DB) SetStats(sampleID string) ([]Stat, error) {
	var (
		out     []Stat
		curSet  string
		wcov    float64
		wcomp   float64
		totalBP int
	)
	emit := func() {
		if totalBP > 0 {
			out = append(out, Stat{
				ParentID:     curSet,
				Coverage:     wcov / float64(totalBP),
				Completeness: wcomp / float64(totalBP),
			})
		}
		wcov, wcomp, totalBP = 0, 0, 0
	}
	err := db.scan([]byte{kindMembership, 0}, func(key, val []byte) error {
		var m elements.Membership
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.SetID != curSet {
			emit()
			curSet = m.SetID
		}
		var d Data
		ok, err := db.get(skey(kindIntervalData, m.IntervalID, sampleID), &d)
		if err != nil || !ok {
			return err
		}
		length := m.End - m.Start + 1
		wcov += float64(length) * d.Coverage
		wcomp += float64(length) * d.Completeness
		totalBP += length
		return nil
	})
	if err != nil {
		return nil, err
	}
	emit()
	return out, nil
}

// SupersetStats aggregates set statistics up to superset level for one
// sample: an unweighted mean over the sets, a deliberate simplification
// relative to the leaf rollup.  Set statistics for the sample must
// already be persisted and flushed.
func (db *DB) SupersetStats(sampleID string) ([]Stat, error) {
	var (
		out   []Stat
		cur   string
		cov   float64
		comp  float64
		nSets int
	)
	emit := func() {
		if nSets > 0 {
			out = append(out, Stat{
				ParentID:     cur,
				Coverage:     cov / float64(nSets),
				Completeness: comp / float64(nSets),
			})
		}
		cov, comp, nSets = 0, 0, 0
	}
	err := db.scan([]byte{kindSetIndex, 0}, func(key, _ []byte) error {
		supersetID, setID, err := splitIndexKey(key)
		if err != nil {
			return err
		}
		if supersetID != cur {
			emit()
			cur = supersetID
		}
		var d Data
		ok, err := db.get(skey(kindSetData, setID, sampleID), &d)
		if err != nil || !ok {
			return err
		}
		cov += d.Coverage
		comp += d.Completeness
		nSets++
		return nil
	})
	if err != nil {
		return nil, err
	}
	emit()
	return out, nil
}

// splitIndexKey decodes a set-index key back into its two id fields.
func splitIndexKey(key []byte) (supersetID, setID string, err error) {
	rest := key[1:]
	if len(rest) == 0 || rest[0] != 0 {
		return "", "", fmt.Errorf("store.splitIndexKey: malformed key % x", key)
	}
	rest = rest[1:]
	sep := bytes.IndexByte(rest, 0)
	if sep < 0 {
		return "", "", fmt.Errorf("store.splitIndexKey: malformed key % x", key)
	}
	return string(rest[:sep]), string(rest[sep+1:]), nil
}

// SupersetData returns persisted superset statistics for the given ids,
// optionally restricted to one sample (empty sampleID means all
// samples).
func (db *DB) SupersetData(ids []string, sampleID string) ([]Data, error) {
	var out []Data
	for _, id := range ids {
		if sampleID != "" {
			var d Data
			ok, err := db.get(skey(kindSupersetData, id, sampleID), &d)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, d)
			}
			continue
		}
		prefix := append(skey(kindSupersetData, id), 0)
		err := db.scan(prefix, func(_, val []byte) error {
			var d Data
			if err := json.Unmarshal(val, &d); err != nil {
				return err
			}
			out = append(out, d)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
