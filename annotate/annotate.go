// Package annotate drives the coverage pipeline: it pulls each
// contig's intervals from the element store, batches them into read
// windows, reduces depth-source reads to per-interval statistics, and
// streams the result in the exchange format.  The import side persists
// such a stream and rolls statistics up the hierarchy.
package annotate

import (
	"io"
	"runtime"
	"strconv"
	"sync"

	"github.com/clinseq/excov/batch"
	"github.com/clinseq/excov/depth"
	"github.com/clinseq/excov/store"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Opts configures one annotation run.
type Opts struct {
	// SampleID uniquely names the sample; GroupID ties related samples
	// (e.g. a family) together.
	SampleID string
	GroupID  string
	// Cutoff is the minimum depth a base must reach to count as
	// complete.
	Cutoff int
	// Extension widens every interval by this many bases on both sides
	// before batching, e.g. 2 to capture splice sites.
	Extension int
	// Threshold caps the combined span of one read window (bases).
	Threshold int
	// Prepend is stuck onto contig names when talking to the depth
	// source, bridging UCSC ("chr1") and NCBI ("1") naming.  Store
	// lookups always use the bare name.
	Prepend string
	// ExtraContigs are annotated after the standard 1..22, X, Y and are
	// not subject to Prepend.
	ExtraContigs []string
	// CoverageSource and ElementSource name the inputs of the run and are
	// recorded verbatim in the exchange metadata.
	CoverageSource string
	ElementSource  string
	// Parallelism is the number of contig workers; 0 means NumCPU.
	// Each worker owns its own depth-source handle.
	Parallelism int
}

// DefaultOpts mirrors the historical defaults of the pipeline.
var DefaultOpts = Opts{
	GroupID:   "0",
	Cutoff:    10,
	Threshold: 17000,
}

// Contigs returns the standard human contig ordering: 1..22, X, Y, each
// with prepend stuck on, then the custom contigs verbatim.
func Contigs(prepend string, custom ...string) []string {
	out := make([]string, 0, 24+len(custom))
	for i := 1; i <= 22; i++ {
		out = append(out, prepend+strconv.Itoa(i))
	}
	out = append(out, prepend+"X", prepend+"Y")
	out = append(out, custom...)
	return out
}

// SourceOpener makes a fresh depth-source handle.  Annotate calls it
// once per worker.
type SourceOpener func() (depth.Source, error)

// Annotate runs the pipeline for one sample and writes the exchange
// stream to w.  Contigs are independent and processed by parallel
// workers; within one contig, batches are read and reduced strictly in
// order.  Output is written contig by contig in the standard order
// regardless of worker scheduling.
func Annotate(db *store.DB, open SourceOpener, w io.Writer, opts Opts) error {
	contigs := Contigs("", opts.ExtraContigs...)
	// Prepend applies to depth-source naming only, and never to the
	// custom contigs.
	sourceNames := append(Contigs(opts.Prepend), opts.ExtraContigs...)

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(contigs) {
		parallelism = len(contigs)
	}

	xw, err := NewExchangeWriter(w, Metadata{
		SampleID:       opts.SampleID,
		GroupID:        opts.GroupID,
		Cutoff:         opts.Cutoff,
		Extension:      opts.Extension,
		CoverageSource: opts.CoverageSource,
		ElementSource:  opts.ElementSource,
	})
	if err != nil {
		return err
	}

	// Each contig's block is streamed as soon as every earlier contig
	// has been written, so the output order stays deterministic while
	// only out-of-order completed contigs are held in memory.
	var (
		mu      sync.Mutex
		pending = make(map[int][]depth.Stat)
		next    int
		werr    error
	)
	emit := func(idx int, stats []depth.Stat) error {
		mu.Lock()
		defer mu.Unlock()
		if werr != nil {
			return werr
		}
		pending[idx] = stats
		for {
			stats, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			next++
			for _, s := range stats {
				if werr = xw.Write(s); werr != nil {
					return werr
				}
			}
		}
	}
	err = traverse.Each(parallelism, func(jobIdx int) (err error) {
		startIdx := (jobIdx * len(contigs)) / parallelism
		endIdx := ((jobIdx + 1) * len(contigs)) / parallelism
		src, err := open()
		if err != nil {
			return err
		}
		defer func() {
			if e := src.Close(); e != nil && err == nil {
				err = e
			}
		}()
		for i := startIdx; i < endIdx; i++ {
			stats, err := annotateContig(db, src, contigs[i], sourceNames[i], opts)
			if err != nil {
				return err
			}
			if err := emit(i, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return xw.Flush()
}

// annotateContig reduces one contig: a strict producer/consumer loop
// where each batch is fully read from the depth source before its
// intervals are reduced.
func annotateContig(db *store.DB, src depth.Source, contig, sourceName string, opts Opts) ([]depth.Stat, error) {
	ivs, err := db.IntervalsByContig(contig)
	if err != nil {
		return nil, err
	}
	if len(ivs) == 0 {
		// Nothing to annotate; issue no depth reads.
		return nil, nil
	}
	bivs := make([]batch.Interval, len(ivs))
	for i, iv := range ivs {
		bivs[i] = batch.Interval{Start: iv.Start, End: iv.End, ID: iv.ID}
	}
	var stats []depth.Stat
	sc := batch.NewScanner(bivs, opts.Threshold, opts.Extension)
	for sc.Scan() {
		g := sc.Group()
		depths, err := src.Read(sourceName, g.Start, g.End)
		if err != nil {
			return nil, err
		}
		stats = append(stats, depth.ReduceGroup(g, depths, opts.Cutoff)...)
	}
	log.Debug.Printf("annotate: %s: %d intervals", contig, len(stats))
	return stats, nil
}
