// Package provider adapts remote speech recognition services to one submit/await/fetch contract.
//
// Two execution strategies exist. Fire-and-poll adapters implement Poller: the caller re-checks
// status at its own pace. Blocking adapters implement Awaiter: one call manages the provider's
// long-running operation and returns once it is done. Every adapter converts its terminal
// result into a types.Payload for the normalizer.
package provider

import (
	"context"
	"errors"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// ErrJobNotFound is returned when the provider has no record of a job.
var ErrJobNotFound = errors.New("transcription job not found")

// Capabilities describe the limits an adapter enforces before any network call.
type Capabilities struct {
	Speakers types.SpeakerRange
	// InlineLimit is the largest payload sent inside the request; zero means always upload.
	InlineLimit int
	// Formats lists the media formats accepted without transcoding.
	Formats []string
}

// SupportsFormat reports whether format can be submitted as is.
func (c Capabilities) SupportsFormat(format string) bool {
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Adapter is implemented by every provider. It also implements exactly one of Poller or Awaiter.
type Adapter interface {
	Name() string
	Capabilities() Capabilities
	// Submit starts a recognition job against staged audio.
	Submit(ctx context.Context, staged *storage.StagedAudio, req types.TranscriptionRequest) (*types.Job, error)
	// FetchResult returns the provider payload of a completed job.
	FetchResult(ctx context.Context, job *types.Job) (*types.Payload, error)
	// DeleteJob removes the provider's record of a completed job.
	DeleteJob(ctx context.Context, job *types.Job) error
}

// JobState is a snapshot of a job's provider-side status.
type JobState struct {
	Status    types.JobStatus
	Reason    string
	Language  string
	ResultRef string
}

// Poller reads a job's status without side effects.
type Poller interface {
	Poll(ctx context.Context, job *types.Job) (JobState, error)
}

// Awaiter blocks until the job reaches a terminal state or ctx is done.
type Awaiter interface {
	Await(ctx context.Context, job *types.Job) (JobState, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// NormalizeLanguageCode maps legacy codes to the ones providers accept.
func NormalizeLanguageCode(code string) string {
	return types.CanonicalLanguage(code)
}
