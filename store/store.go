// Package store persists the feature hierarchy and per-sample
// statistics in an ordered key/value database (modernc.org/kv).
//
// Keys are binary, ordered by bytes.Compare: a one-byte record-kind
// prefix, then NUL-separated identifier fields, with genomic
// coordinates big-endian so ranges enumerate in position order.  Values
// are JSON.  The handle is explicit; lifecycle (open, flush
// checkpoints, close) belongs to the caller.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clinseq/excov/elements"
	"github.com/grailbio/base/errors"
	"modernc.org/kv"
)

// Record-kind key prefixes.  Hierarchy records sort before statistic
// records; the exact byte values only matter for grouping scans.
const (
	kindSuperset     = 'G'
	kindSet          = 'T'
	kindInterval     = 'E' // contig, start, end -> interval
	kindMembership   = 'M' // set id, interval id -> link attributes
	kindSetIndex     = 'X' // superset id, set id -> (no value)
	kindSample       = 'S'
	kindIntervalData = 'd' // interval id, sample id -> statistics
	kindSetData      = 'e'
	kindSupersetData = 'f'
)

var order = binary.BigEndian

// Sample records the metadata of one annotation run.  Immutable once
// imported.
type Sample struct {
	ID             string
	GroupID        string
	Cutoff         int
	Extension      int
	CoverageSource string
	ElementSource  string
	CreatedAt      time.Time
}

// Data is one persisted statistic record: coverage/completeness of one
// feature for one sample.  Never updated in place; a re-annotation under
// a new sample id adds records beside the old ones.
type Data struct {
	ParentID     string
	SampleID     string
	GroupID      string
	Coverage     float64
	Completeness float64
}

// DB is a handle to one element store.
type DB struct {
	kv   *kv.DB
	inTx bool
}

func options() *kv.Options { return &kv.Options{} }

// Create makes a new store at path, refusing to clobber an existing
// one: callers that really mean it remove the file first.
func Create(path string) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.E(errors.Exists, fmt.Sprintf("store.Create: %s already exists", path))
	}
	db, err := kv.Create(path, options())
	if err != nil {
		return nil, err
	}
	return &DB{kv: db}, nil
}

// Open opens an existing store.
func Open(path string) (*DB, error) {
	db, err := kv.Open(path, options())
	if err != nil {
		return nil, err
	}
	return &DB{kv: db}, nil
}

// CreateMem makes an in-memory store, mainly for tests.
func CreateMem() (*DB, error) {
	db, err := kv.CreateMem(options())
	if err != nil {
		return nil, err
	}
	return &DB{kv: db}, nil
}

// Flush commits any open transaction.  Rollup queries must observe
// leaf/set writes from the same run, so callers flush between the write
// and read phases.
func (db *DB) Flush() error {
	if !db.inTx {
		return nil
	}
	db.inTx = false
	return db.kv.Commit()
}

// Close flushes and releases the underlying database.
func (db *DB) Close() error {
	err := db.Flush()
	if cerr := db.kv.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// begin opens a transaction if none is active.  Writes accumulate until
// the next Flush so bulk loads aren't committed record by record.
func (db *DB) begin() error {
	if db.inTx {
		return nil
	}
	if err := db.kv.BeginTransaction(); err != nil {
		return err
	}
	db.inTx = true
	return nil
}

func (db *DB) put(k []byte, v interface{}) error {
	if err := db.begin(); err != nil {
		return err
	}
	var val []byte
	if v != nil {
		var err error
		if val, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return db.kv.Set(k, val)
}

// skey assembles a key from a kind byte and NUL-separated string fields.
func skey(kind byte, fields ...string) []byte {
	n := 1
	for _, f := range fields {
		n += 1 + len(f)
	}
	k := make([]byte, 1, n)
	k[0] = kind
	for _, f := range fields {
		k = append(k, 0)
		k = append(k, f...)
	}
	return k
}

// intervalKey orders intervals by (contig, start, end) so a prefix scan
// yields a contig's intervals already sorted by start.
func intervalKey(contig string, start, end int) []byte {
	k := skey(kindInterval, contig)
	var b [4]byte
	k = append(k, 0)
	order.PutUint32(b[:], uint32(start))
	k = append(k, b[:]...)
	order.PutUint32(b[:], uint32(end))
	k = append(k, b[:]...)
	return k
}

// AddSuperset implements elements.Sink.
func (db *DB) AddSuperset(ss elements.Superset) error {
	return db.put(skey(kindSuperset, ss.ID), ss)
}

// AddSet implements elements.Sink.  A secondary index entry under the
// parent superset feeds the superset rollup scan.
func (db *DB) AddSet(s elements.Set) error {
	if err := db.put(skey(kindSet, s.ID), s); err != nil {
		return err
	}
	return db.put(skey(kindSetIndex, s.SupersetID, s.ID), nil)
}

// AddInterval implements elements.Sink.
func (db *DB) AddInterval(iv elements.Interval) error {
	return db.put(intervalKey(iv.Contig, iv.Start, iv.End), iv)
}

// AddMembership implements elements.Sink.
func (db *DB) AddMembership(m elements.Membership) error {
	return db.put(skey(kindMembership, m.SetID, m.IntervalID), m)
}

// Commit implements elements.Sink.
func (db *DB) Commit() error {
	return db.Flush()
}

// AddSample records annotation-run metadata, stamping CreatedAt if the
// caller left it zero.
func (db *DB) AddSample(s Sample) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return db.put(skey(kindSample, s.ID), s)
}

// AddIntervalData persists one leaf statistic record.
func (db *DB) AddIntervalData(d Data) error {
	return db.put(skey(kindIntervalData, d.ParentID, d.SampleID), d)
}

// AddSetData persists one set-level statistic record.
func (db *DB) AddSetData(d Data) error {
	return db.put(skey(kindSetData, d.ParentID, d.SampleID), d)
}

// AddSupersetData persists one superset-level statistic record.
func (db *DB) AddSupersetData(d Data) error {
	return db.put(skey(kindSupersetData, d.ParentID, d.SampleID), d)
}
