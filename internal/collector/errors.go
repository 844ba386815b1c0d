package collector

import (
	"errors"
	"fmt"

	"github.com/Guliveer/dstat-agent/internal/dstat"
)

// Failure reasons reported in logs and self-metrics.
const (
	ReasonSampler    = "sampler"
	ReasonScratch    = "scratch"
	ReasonMisaligned = "misaligned"
	ReasonOther      = "other"
)

// SamplerError reports a sampler that could not be started or exited
// with a non-zero status.
type SamplerError struct {
	Command string
	Output  string
	Err     error
}

func (e *SamplerError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("sampler %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("sampler %q: %v: %s", e.Command, e.Err, e.Output)
}

func (e *SamplerError) Unwrap() error { return e.Err }

// ScratchError reports a scratch file that could not be prepared or read.
type ScratchError struct {
	Op   string
	Path string
	Err  error
}

func (e *ScratchError) Error() string {
	return fmt.Sprintf("%s scratch file %s: %v", e.Op, e.Path, e.Err)
}

func (e *ScratchError) Unwrap() error { return e.Err }

// FailureReason classifies a Collect error for logging and metrics.
func FailureReason(err error) string {
	var se *SamplerError
	var fe *ScratchError
	switch {
	case errors.As(err, &se):
		return ReasonSampler
	case errors.As(err, &fe):
		return ReasonScratch
	case errors.Is(err, dstat.ErrHeaderMisalignment):
		return ReasonMisaligned
	default:
		return ReasonOther
	}
}
