package burstfit

import (
	"context"
	"errors"
)

var (
	// configuration-level: abort the run before any fitting
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrInvalidManifestRow  = errors.New("invalid manifest row")
	ErrMissingStartTime    = errors.New("missing start time")
	ErrAmbiguousStartTime  = errors.New("start time given by both manifest and command line")
	ErrOutputAlreadyExists = errors.New("output already exists")

	// job-level: recorded against a single trace
	ErrSampleCountTooSmall = errors.New("fewer samples than pulses")
	ErrDegenerateFit       = errors.New("degenerate fit")
	ErrTraceRead           = errors.New("trace read failure")
	ErrPoorFit             = errors.New("poor fit quality")
	ErrNonFinite           = errors.New("non-finite value")
)

// Kind groups errors by how far they propagate.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindConfig  Kind = "config"
	KindJob     Kind = "job"
	KindCancel  Kind = "cancel"
)

// Classify maps an error onto its propagation kind using sentinel matching
// only.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancel
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidManifestRow),
		errors.Is(err, ErrMissingStartTime),
		errors.Is(err, ErrAmbiguousStartTime),
		errors.Is(err, ErrOutputAlreadyExists):
		return KindConfig
	case errors.Is(err, ErrSampleCountTooSmall),
		errors.Is(err, ErrDegenerateFit),
		errors.Is(err, ErrTraceRead),
		errors.Is(err, ErrPoorFit),
		errors.Is(err, ErrNonFinite):
		return KindJob
	}
	return KindUnknown
}
