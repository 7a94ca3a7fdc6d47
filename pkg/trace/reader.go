// Package trace loads oscilloscope records from disk.
package trace

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kacperjurak/burstfit"
)

// Reader loads one trace. Implementations must be safe for concurrent use.
type Reader interface {
	Read(path string) (burstfit.Trace, error)
}

// leCroyHeaderRows is the size of the preamble a LeCroy scope writes before
// the time,amplitude pairs.
const leCroyHeaderRows = 5

// LeCroyReader reads the two-column CSV export of LeCroy oscilloscopes.
type LeCroyReader struct {
	// HeaderRows overrides the number of preamble lines skipped. Zero keeps
	// the LeCroy default.
	HeaderRows int
}

func NewLeCroyReader() *LeCroyReader {
	return &LeCroyReader{}
}

func (r *LeCroyReader) Read(path string) (burstfit.Trace, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return burstfit.Trace{}, fmt.Errorf("%w: %s: input file must be a .csv file", burstfit.ErrTraceRead, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return burstfit.Trace{}, fmt.Errorf("%w: %v", burstfit.ErrTraceRead, err)
	}
	defer f.Close()

	tr, err := r.decode(f)
	if err != nil {
		return burstfit.Trace{}, fmt.Errorf("%w: %s: %v", burstfit.ErrTraceRead, path, err)
	}
	return tr, nil
}

func (r *LeCroyReader) decode(src io.Reader) (burstfit.Trace, error) {
	skip := r.HeaderRows
	if skip <= 0 {
		skip = leCroyHeaderRows
	}

	br := bufio.NewReader(src)
	for i := 0; i < skip; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return burstfit.Trace{}, fmt.Errorf("preamble ends after %d lines", i)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var tr burstfit.Trace
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return burstfit.Trace{}, err
		}

		t, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return burstfit.Trace{}, fmt.Errorf("line %d: invalid time %q", line+skip, rec[0])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			line, _ := cr.FieldPos(1)
			return burstfit.Trace{}, fmt.Errorf("line %d: invalid amplitude %q", line+skip, rec[1])
		}
		if !finite(t) || !finite(v) {
			line, _ := cr.FieldPos(0)
			return burstfit.Trace{}, fmt.Errorf("line %d: non-finite sample %q,%q", line+skip, rec[0], rec[1])
		}
		tr.Times = append(tr.Times, t)
		tr.Values = append(tr.Values, v)
	}

	if tr.Len() == 0 {
		return burstfit.Trace{}, errors.New("no samples")
	}
	return tr, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
