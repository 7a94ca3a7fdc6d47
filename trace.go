package burstfit

import "fmt"

// Trace is one oscilloscope channel: sample times (s) and voltages (V).
// Times are expected to be strictly increasing; they are never re-sorted.
type Trace struct {
	Times  []float64
	Values []float64
}

func NewTrace(times, values []float64) (Trace, error) {
	if len(times) != len(values) {
		return Trace{}, fmt.Errorf("trace: %d times but %d values", len(times), len(values))
	}
	return Trace{Times: times, Values: values}, nil
}

func (t Trace) Len() int { return len(t.Times) }

// Restrict returns the samples with start <= time <= end. The result shares
// no memory with t.
func (t Trace) Restrict(start, end float64) Trace {
	var res Trace
	for i, tm := range t.Times {
		if tm >= start && tm <= end {
			res.Times = append(res.Times, tm)
			res.Values = append(res.Values, t.Values[i])
		}
	}
	return res
}
