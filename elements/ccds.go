package elements

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// ccdsRow mirrors one line of the CCDS reference dump.  Column order is
// fixed; the leading "#chromosome ..." header line is skipped as a
// comment.
type ccdsRow struct {
	Chromosome  string
	NCAccession string
	Gene        string
	GeneID      string
	CCDSID      string
	CCDSStatus  string
	CDSStrand   string
	CDSFrom     int
	CDSTo       int
	Locations   string
	MatchType   string
}

// statusPublic is the only CCDS status imported; everything else
// (Withdrawn, Under review, ...) is discarded.
const statusPublic = "Public"

func readCCDS(ctx context.Context, path string) ([]ccdsRow, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var inr io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	scanner := tsv.NewReader(bufio.NewReaderSize(inr, 64<<10))
	scanner.Comment = '#'
	var rows []ccdsRow
	var line ccdsRow
	for {
		if err := scanner.Read(&line); err != nil {
			if err != io.EOF {
				_ = in.Close(ctx)
				return nil, fmt.Errorf("elements.readCCDS %s: %v", path, err)
			}
			break
		}
		if line.CCDSStatus != statusPublic {
			continue
		}
		rows = append(rows, line)
	}
	if err := in.Close(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// parseLocations parses the bracketed interval-coordinate string of a
// reference row, e.g. "[100-200, 300-400]", into ordered (start, end)
// pairs.  Coordinates are 1-based inclusive and kept that way.  Any
// syntax problem is an error; the caller treats it as fatal for the
// whole build.
func parseLocations(s string) ([][2]int, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("elements.parseLocations: missing brackets in %q", s)
	}
	body := strings.ReplaceAll(s[1:len(s)-1], " ", "")
	if body == "" {
		return nil, fmt.Errorf("elements.parseLocations: empty coordinate list in %q", s)
	}
	pairs := strings.Split(body, ",")
	locs := make([][2]int, 0, len(pairs))
	for _, pair := range pairs {
		dash := strings.IndexByte(pair, '-')
		if dash <= 0 || dash == len(pair)-1 {
			return nil, fmt.Errorf("elements.parseLocations: malformed pair %q in %q", pair, s)
		}
		start, err := strconv.Atoi(pair[:dash])
		if err != nil {
			return nil, fmt.Errorf("elements.parseLocations: bad start in %q: %v", pair, err)
		}
		end, err := strconv.Atoi(pair[dash+1:])
		if err != nil {
			return nil, fmt.Errorf("elements.parseLocations: bad end in %q: %v", pair, err)
		}
		if end < start {
			return nil, fmt.Errorf("elements.parseLocations: end < start in %q", pair)
		}
		locs = append(locs, [2]int{start, end})
	}
	return locs, nil
}

// IntervalID returns the deterministic identifier for an interval.
func IntervalID(contig string, start, end int) string {
	return contig + "-" + strconv.Itoa(start) + "-" + strconv.Itoa(end)
}
