// Package manifest parses batch manifests: one trace per line, given as
// filename, trace type and an optional burst start time.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/pkg/models"
)

// Entry is one validated manifest row.
type Entry struct {
	Line     int
	Filename string
	Type     burstfit.TraceType
	T0       *float64
}

// Name is the column label of the entry: the filename without directory
// and extension.
func (e Entry) Name() string {
	base := filepath.Base(e.Filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parser turns manifest text into entries.
type Parser interface {
	Parse(r io.Reader) ([]Entry, error)
}

// CSVParser reads comma separated manifests. Lines starting with '#' are
// comments.
type CSVParser struct{}

func NewParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var entries []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", burstfit.ErrInvalidManifestRow, err)
		}
		line, _ := cr.FieldPos(0)

		entry, err := parseRecord(line, rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: manifest lists no traces", burstfit.ErrInvalidManifestRow)
	}
	return entries, nil
}

func parseRecord(line int, rec []string) (Entry, error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	// a trailing comma leaves an empty third column
	if len(rec) == 3 && rec[2] == "" {
		rec = rec[:2]
	}

	rowErr := func(format string, args ...any) error {
		return fmt.Errorf("%w: line %d: %s", burstfit.ErrInvalidManifestRow, line, fmt.Sprintf(format, args...))
	}

	switch {
	case len(rec) < 2 || rec[1] == "":
		return Entry{}, rowErr("missing trace type")
	case len(rec) > 3:
		return Entry{}, rowErr("expected at most 3 columns, got %d", len(rec))
	case rec[0] == "":
		return Entry{}, rowErr("missing filename")
	}

	tt, err := burstfit.ParseTraceType(rec[1])
	if err != nil {
		return Entry{}, rowErr("%v", err)
	}

	entry := Entry{Line: line, Filename: rec[0], Type: tt}
	if len(rec) == 3 {
		t0, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return Entry{}, rowErr("invalid t0 %q", rec[2])
		}
		entry.T0 = &t0
	}
	return entry, nil
}

// ParseFile parses the manifest stored at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open manifest: %v", burstfit.ErrInvalidConfig, err)
	}
	defer f.Close()

	entries, err := NewParser().Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// StartTimePolicy says where burst start times come from.
type StartTimePolicy struct {
	// FromManifest requires every row to carry its own t0.
	FromManifest bool
	// CommandLine is the shared t0 given on the command line, if any.
	CommandLine *float64
}

// ResolveStartTimes turns entries into jobs with exactly one effective t0
// each. Start times given in two places, or in none, are rejected before any
// job exists.
func ResolveStartTimes(entries []Entry, dataDir string, pulses int, policy StartTimePolicy) ([]models.TraceJob, error) {
	if pulses <= 0 {
		return nil, fmt.Errorf("%w: pulse count must be positive, got %d", burstfit.ErrInvalidConfig, pulses)
	}
	if policy.FromManifest && policy.CommandLine != nil {
		return nil, fmt.Errorf("%w: t0 requested from the manifest but also given on the command line", burstfit.ErrAmbiguousStartTime)
	}
	if !policy.FromManifest && policy.CommandLine == nil {
		return nil, fmt.Errorf("%w: pass t0 on the command line or read it from the manifest", burstfit.ErrMissingStartTime)
	}

	jobs := make([]models.TraceJob, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		var t0 float64
		switch {
		case policy.FromManifest && e.T0 == nil:
			return nil, fmt.Errorf("%w: line %d (%s) has no t0", burstfit.ErrMissingStartTime, e.Line, e.Filename)
		case policy.FromManifest:
			t0 = *e.T0
		case e.T0 != nil:
			return nil, fmt.Errorf("%w: line %d (%s) carries t0", burstfit.ErrAmbiguousStartTime, e.Line, e.Filename)
		default:
			t0 = *policy.CommandLine
		}

		name := e.Name()
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: line %d repeats trace %q from line %d", burstfit.ErrInvalidManifestRow, e.Line, name, prev)
		}
		seen[name] = e.Line

		jobs = append(jobs, models.TraceJob{
			Index:  i,
			Name:   name,
			Path:   filepath.Join(dataDir, e.Filename),
			Type:   e.Type,
			T0:     t0,
			Pulses: pulses,
		})
	}
	return jobs, nil
}
