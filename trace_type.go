package burstfit

import (
	"fmt"
	"strings"
)

// TraceType identifies the oscilloscope channel a trace was recorded on.
type TraceType int

const (
	PUMP TraceType = iota
	REFLECTED
	TRANSMITTED
)

var traceTypeNames = [...]string{"PUMP", "REFLECTED", "TRANSMITTED"}

// TraceTypes lists every trace type in canonical order.
func TraceTypes() []TraceType { return []TraceType{PUMP, REFLECTED, TRANSMITTED} }

func (t TraceType) String() string {
	if t < 0 || int(t) >= len(traceTypeNames) {
		return fmt.Sprintf("TraceType(%d)", int(t))
	}
	return traceTypeNames[t]
}

// ParseTraceType accepts only the canonical uppercase names.
func ParseTraceType(s string) (TraceType, error) {
	for i, name := range traceTypeNames {
		if s == name {
			return TraceType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trace type %q (want one of %s)", s, strings.Join(traceTypeNames[:], ", "))
}

// NormalizeTraceType trims and upper-cases s before parsing it.
func NormalizeTraceType(s string) (TraceType, error) {
	return ParseTraceType(strings.ToUpper(strings.TrimSpace(s)))
}

func (t TraceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TraceType) UnmarshalText(b []byte) error {
	v, err := ParseTraceType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
