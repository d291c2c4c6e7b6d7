package transcription

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies why a transcription failed.
type Kind int

const (
	// KindValidation: the request or input was rejected before any side effect.
	KindValidation Kind = iota + 1
	// KindStaging: audio could not be made addressable to the provider.
	KindStaging
	// KindProvider: the provider rejected the job or reported it failed.
	KindProvider
	// KindTimeout: the job did not finish within the request timeout.
	KindTimeout
	// KindTransient: status checks kept failing past the tolerated bound.
	KindTransient
	// KindCanceled: the caller canceled the request.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindStaging:
		return "staging error"
	case KindProvider:
		return "provider error"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient error"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown error"
	}
}

// Error is returned by Orchestrator.Transcribe for every failure.
type Error struct {
	Kind    Kind
	JobID   string
	Reason  string
	Elapsed time.Duration
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s", e.JobID)
		if e.Elapsed > 0 {
			fmt.Fprintf(&b, ", after %s", e.Elapsed.Round(time.Millisecond))
		}
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil && e.Err.Error() != e.Reason {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTimeout reports whether err is a transcription timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }
