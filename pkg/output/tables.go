package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kacperjurak/burstfit/pkg/models"
)

const (
	// AmplitudeTable is the batch amplitude table.
	AmplitudeTable = "trace-amplitudes.csv"
	// SummaryTable lists every job of a batch run.
	SummaryTable = "fit-summary.csv"
)

// AmplitudeTableName returns the table name for a single-trace fit.
func AmplitudeTableName(trace string) string {
	return trace + "-amplitudes.csv"
}

// WriteAmplitudes writes one column per label, one row per pulse index. The
// header line is "# " followed by the comma separated labels.
func WriteAmplitudes(w io.Writer, labels []string, columns [][]float64) error {
	if len(labels) != len(columns) {
		return fmt.Errorf("%d labels for %d columns", len(labels), len(columns))
	}
	if len(columns) == 0 {
		return errors.New("no amplitude columns")
	}
	rows := len(columns[0])
	for i, col := range columns {
		if len(col) != rows {
			return fmt.Errorf("column %q has %d rows, want %d", labels[i], len(col), rows)
		}
	}

	if _, err := fmt.Fprintf(w, "# %s\n", strings.Join(labels, ",")); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	record := make([]string, len(columns))
	for r := 0; r < rows; r++ {
		for c, col := range columns {
			record[c] = strconv.FormatFloat(col[r], 'e', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadAmplitudes parses a table written by WriteAmplitudes.
func ReadAmplitudes(r io.Reader) (labels []string, columns [][]float64, err error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	header = strings.TrimRight(header, "\r\n")
	if !strings.HasPrefix(header, "# ") {
		return nil, nil, fmt.Errorf("missing label header")
	}
	labels = strings.Split(strings.TrimPrefix(header, "# "), ",")
	columns = make([][]float64, len(labels))

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(labels)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, err
			}
			columns[i] = append(columns[i], v)
		}
	}
	return labels, columns, nil
}

// WriteSummary writes one row per job followed by a comment line with
// run-level statistics.
func WriteSummary(w io.Writer, timings []models.JobTiming, total time.Duration, workers int) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Index",
		"Name",
		"Type",
		"State",
		"Samples",
		"RSquared",
		"ReducedChiSq",
		"ProcessingTime_ms",
		"Error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	var (
		totalJobTime     time.Duration
		minTime, maxTime time.Duration = time.Duration(math.MaxInt64), 0
		successful       int
	)
	for _, t := range timings {
		totalJobTime += t.ProcessingTime
		minTime = min(minTime, t.ProcessingTime)
		maxTime = max(maxTime, t.ProcessingTime)
		if t.State == models.Completed.String() {
			successful++
		}

		record := []string{
			strconv.Itoa(t.Index),
			t.Name,
			t.Type,
			t.State,
			strconv.Itoa(t.Samples),
			formatStat(t.RSquared),
			formatStat(t.ReducedChiSq),
			fmt.Sprintf("%.3f", ms(t.ProcessingTime)),
			t.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if len(timings) == 0 {
		minTime = 0
	}
	var avg time.Duration
	if n := len(timings); n > 0 {
		avg = totalJobTime / time.Duration(n)
	}

	// efficiency: how well the workers were kept busy
	efficiency := 0.0
	if total > 0 && workers > 0 {
		efficiency = totalJobTime.Seconds() / (total.Seconds() * float64(workers)) * 100
	}

	_, err := fmt.Fprintf(w, "# jobs=%d completed=%d workers=%d total_ms=%.3f avg_ms=%.3f min_ms=%.3f max_ms=%.3f efficiency=%.1f%%\n",
		len(timings), successful, workers, ms(total), ms(avg), ms(minTime), ms(maxTime), efficiency)
	return err
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', 8, 64)
}
