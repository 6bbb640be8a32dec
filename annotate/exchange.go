package annotate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/clinseq/excov/depth"
	"github.com/grailbio/base/tsv"
)

// Metadata is the structured header of the annotation exchange format:
// one '#'-prefixed JSON line, followed by tab-separated
// (interval id, coverage, completeness) data lines.  The format is what
// `annotate` emits and `import` consumes, so runs can be piped or
// archived between the two steps.
type Metadata struct {
	SampleID       string `json:"sample_id"`
	GroupID        string `json:"group_id"`
	Cutoff         int    `json:"cutoff"`
	Extension      int    `json:"extension"`
	CoverageSource string `json:"coverage_source"`
	ElementSource  string `json:"element_source"`
}

// ExchangeWriter streams an annotation run to w.
type ExchangeWriter struct {
	w *tsv.Writer
}

// NewExchangeWriter writes the metadata header and returns a writer for
// the data lines.
func NewExchangeWriter(w io.Writer, meta Metadata) (*ExchangeWriter, error) {
	js, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	tw := tsv.NewWriter(w)
	tw.WriteString("#" + string(js))
	if err := tw.EndLine(); err != nil {
		return nil, err
	}
	return &ExchangeWriter{w: tw}, nil
}

// Write appends one data line.
func (x *ExchangeWriter) Write(s depth.Stat) error {
	x.w.WriteString(s.IntervalID)
	x.w.WriteFloat64(s.Coverage, 'g', -1)
	x.w.WriteFloat64(s.Completeness, 'g', -1)
	return x.w.EndLine()
}

// Flush flushes buffered data lines to the underlying writer.
func (x *ExchangeWriter) Flush() error {
	return x.w.Flush()
}

// exchangeRow mirrors one data line on import.
type exchangeRow struct {
	ID           string
	Coverage     float64
	Completeness float64
}

// readExchange parses the metadata header, hands it to header, then
// calls row for each data line in order.  A missing or malformed header
// is a fatal input error.
func readExchange(r io.Reader, header func(Metadata) error, row func(exchangeRow) error) (Metadata, error) {
	var meta Metadata
	br := bufio.NewReader(r)
	line0, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return meta, err
	}
	line0 = strings.TrimSuffix(line0, "\n")
	if !strings.HasPrefix(line0, "#") {
		return meta, fmt.Errorf("annotate.readExchange: missing '#' metadata header")
	}
	if err := json.Unmarshal([]byte(line0[1:]), &meta); err != nil {
		return meta, fmt.Errorf("annotate.readExchange: bad metadata header: %v", err)
	}
	if err := header(meta); err != nil {
		return meta, err
	}
	tr := tsv.NewReader(br)
	var line exchangeRow
	for {
		if err := tr.Read(&line); err != nil {
			if err == io.EOF {
				return meta, nil
			}
			return meta, fmt.Errorf("annotate.readExchange: %v", err)
		}
		if err := row(line); err != nil {
			return meta, err
		}
	}
}
