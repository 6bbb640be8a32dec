package depth

import (
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
)

// BAM is a Source backed by a coordinate-sorted, indexed BAM file.
// Reads for one contig are not interleaved with another, matching the
// one-handle-per-worker model; a BAM is not safe for concurrent use.
type BAM struct {
	in   *os.File
	r    *bam.Reader
	idx  *bam.Index
	refs map[string]*sam.Reference
}

// NewBAM opens the alignment file at path.  indexPath defaults to
// path + ".bai" when empty.
func NewBAM(path, indexPath string) (*BAM, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := bam.NewReader(in, 1)
	if err != nil {
		_ = in.Close()
		return nil, errors.E(err, "depth.NewBAM:", path)
	}
	if indexPath == "" {
		indexPath = path + ".bai"
	}
	idxIn, err := os.Open(indexPath)
	if err != nil {
		_ = r.Close()
		_ = in.Close()
		return nil, err
	}
	idx, err := bam.ReadIndex(idxIn)
	if cerr := idxIn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = r.Close()
		_ = in.Close()
		return nil, errors.E(err, "depth.NewBAM: reading index", indexPath)
	}
	refs := make(map[string]*sam.Reference)
	for _, ref := range r.Header().Refs() {
		refs[ref.Name()] = ref
	}
	return &BAM{in: in, r: r, idx: idx, refs: refs}, nil
}

// Read implements Source.  start and end are 1-based inclusive.
func (b *BAM) Read(contig string, start, end int) ([]int32, error) {
	ref, ok := b.refs[contig]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("depth.BAM.Read: contig %q not in BAM header", contig))
	}
	beg0, end0 := start-1, end // 0-based half-open
	depths := make([]int32, end-start+1)
	chunks, err := b.idx.Chunks(ref, beg0, end0)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads mapped to this window.
		return depths, nil
	}
	if err != nil {
		return nil, err
	}
	it, err := bam.NewIterator(b.r, chunks)
	if err != nil {
		return nil, err
	}
	for it.Next() {
		rec := it.Record()
		if rec.Flags&sam.Unmapped != 0 || rec.Ref.ID() != ref.ID() {
			continue
		}
		pileRecord(depths, rec, beg0, end0)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return depths, nil
}

// pileRecord adds one aligned record to the depth array covering the
// 0-based half-open window [beg0, end0).  Ops that consume reference
// count as covered except N (intron skip); a deletion keeps the read
// spanning the position, which is how pileup columns count it.
func pileRecord(depths []int32, rec *sam.Record, beg0, end0 int) {
	pos := rec.Pos
	for _, co := range rec.Cigar {
		t := co.Type()
		if con := t.Consumes(); con.Reference == 1 {
			if t != sam.CigarSkipped {
				lo, hi := pos, pos+co.Len()
				if lo < beg0 {
					lo = beg0
				}
				if hi > end0 {
					hi = end0
				}
				for p := lo; p < hi; p++ {
					depths[p-beg0]++
				}
			}
			pos += co.Len()
		}
	}
}

// Close releases the reader and underlying file.
func (b *BAM) Close() error {
	err := b.r.Close()
	if cerr := b.in.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
