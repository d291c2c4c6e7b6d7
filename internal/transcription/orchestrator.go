package transcription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/provider"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// Defaults for the job supervisor.
const (
	DefaultPollInterval       = 5 * time.Second
	DefaultMaxTransientErrors = 3
	DefaultCleanupTimeout     = 30 * time.Second
)

// State is the supervisor's view of one transcription request.
type State string

const (
	StateInitiated State = "INITIATED"
	StateStaged    State = "STAGED"
	StateSubmitted State = "SUBMITTED"
	StatePolling   State = "POLLING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateTimedOut  State = "TIMED_OUT"
)

// Orchestrator drives one adapter through stage, submit, wait, fetch and normalize, and
// guarantees staged audio is released on every exit path.
type Orchestrator struct {
	adapter provider.Adapter
	stager  *storage.Stager

	pollInterval       time.Duration
	maxTransientErrors int
	cleanupTimeout     time.Duration
	onTransition       func(jobID string, from, to State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the delay between status checks of fire-and-poll adapters.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxTransientErrors sets how many consecutive failed status checks are tolerated.
func WithMaxTransientErrors(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTransientErrors = n
		}
	}
}

// WithCleanupTimeout bounds release and job deletion, which run even after the request
// context is done.
func WithCleanupTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.cleanupTimeout = d
		}
	}
}

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(jobID string, from, to State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// New creates an orchestrator for adapter. stager owns audio uploads for this adapter's store.
func New(adapter provider.Adapter, stager *storage.Stager, opts ...Option) *Orchestrator {
	if stager == nil {
		stager = storage.NewStager(nil, "")
	}
	o := &Orchestrator{
		adapter:            adapter,
		stager:             stager,
		pollInterval:       DefaultPollInterval,
		maxTransientErrors: DefaultMaxTransientErrors,
		cleanupTimeout:     DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider returns the adapter name.
func (o *Orchestrator) Provider() string { return o.adapter.Name() }

// Capabilities returns the adapter's limits.
func (o *Orchestrator) Capabilities() provider.Capabilities { return o.adapter.Capabilities() }

// run tracks one request through its states.
type run struct {
	o     *Orchestrator
	id    string
	state State
	start time.Time
}

func (r *run) to(next State) {
	if r.state == next {
		return
	}
	id := r.id
	if id == "" {
		id = "-"
	}
	log.Printf("[job %s] %s -> %s (%s)", id, r.state, next, time.Since(r.start).Round(time.Millisecond))
	if r.o.onTransition != nil {
		r.o.onTransition(r.id, r.state, next)
	}
	r.state = next
}

func (r *run) fail(kind Kind, reason string, err error) *Error {
	if kind == KindTimeout {
		r.to(StateTimedOut)
	} else {
		r.to(StateFailed)
	}
	return &Error{
		Kind:    kind,
		JobID:   r.id,
		Reason:  reason,
		Elapsed: time.Since(r.start),
		Err:     err,
	}
}

// interrupted maps a done context to a timeout or cancellation failure.
func (r *run) interrupted(ctx context.Context, timeout time.Duration) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason := fmt.Sprintf("transcription did not finish within %s", timeout)
		if r.id != "" {
			reason = fmt.Sprintf("transcription job %s timed out after %s", r.id, timeout)
		}
		return r.fail(KindTimeout, reason, ctx.Err())
	}
	return r.fail(KindCanceled, "transcription canceled", ctx.Err())
}

// Transcribe runs input through the adapter and returns ordered segments.
// Validation happens before any network call. Owned staged audio is deleted exactly once on
// every path out of this method; the provider job is deleted only after success.
func (o *Orchestrator) Transcribe(ctx context.Context, input types.AudioInput, req types.TranscriptionRequest) (*types.TranscriptionResult, error) {
	r := &run{o: o, state: StateInitiated, start: time.Now()}

	caps := o.adapter.Capabilities()
	if err := input.Validate(); err != nil {
		return nil, r.fail(KindValidation, err.Error(), err)
	}
	if err := req.Validate(caps.Speakers); err != nil {
		return nil, r.fail(KindValidation, err.Error(), err)
	}
	if !caps.SupportsFormat(input.Format()) {
		err := fmt.Errorf("%w: media format %q is not supported by %s", types.ErrInvalidRequest, input.Format(), o.adapter.Name())
		return nil, r.fail(KindValidation, err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	staged, err := o.stager.Stage(ctx, input, caps.InlineLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.interrupted(ctx, req.Timeout)
		}
		return nil, r.fail(KindStaging, "failed to stage audio", err)
	}
	defer o.release(ctx, staged)
	r.to(StateStaged)

	job, err := o.adapter.Submit(ctx, staged, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.interrupted(ctx, req.Timeout)
		}
		return nil, r.fail(KindProvider, "job submission rejected", err)
	}
	r.id = job.ID
	r.to(StateSubmitted)
	for _, adv := range job.Advisories {
		log.Printf("[job %s] WARNING: %s", job.ID, adv)
	}

	state, ferr := o.wait(ctx, r, job, req.Timeout)
	if ferr != nil {
		return nil, ferr
	}

	job.Status = state.Status
	job.Reason = state.Reason
	job.ResultRef = state.ResultRef
	if state.Language != "" {
		job.Language = state.Language
	}
	if state.Status == types.JobFailed {
		return nil, r.fail(KindProvider, state.Reason, nil)
	}

	payload, err := o.adapter.FetchResult(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.interrupted(ctx, req.Timeout)
		}
		return nil, r.fail(KindProvider, "failed to fetch result", err)
	}
	segments := Normalize(payload)
	r.to(StateCompleted)

	o.release(ctx, staged)
	o.deleteJob(ctx, job)

	log.Printf("[job %s] Transcribed %d segments in %s", job.ID, len(segments), time.Since(r.start).Round(time.Millisecond))
	return &types.TranscriptionResult{
		JobID:      job.ID,
		Provider:   o.adapter.Name(),
		Segments:   segments,
		Advisories: job.Advisories,
		Elapsed:    time.Since(r.start),
	}, nil
}

// wait blocks until the job is terminal using the adapter's strategy.
func (o *Orchestrator) wait(ctx context.Context, r *run, job *types.Job, timeout time.Duration) (provider.JobState, *Error) {
	switch a := o.adapter.(type) {
	case provider.Awaiter:
		state, err := a.Await(ctx, job)
		if err != nil {
			return provider.JobState{}, o.classify(ctx, r, timeout, err)
		}
		return state, nil
	case provider.Poller:
		return o.poll(ctx, r, a, job, timeout)
	default:
		return provider.JobState{}, r.fail(KindProvider, fmt.Sprintf("adapter %s cannot report job status", o.adapter.Name()), nil)
	}
}

// poll checks status every pollInterval. A failed check is retried on the next tick until
// maxTransientErrors consecutive failures.
func (o *Orchestrator) poll(ctx context.Context, r *run, p provider.Poller, job *types.Job, timeout time.Duration) (provider.JobState, *Error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		state, err := p.Poll(ctx, job)
		if err != nil {
			if ctx.Err() != nil || provider.IsPermanent(err) {
				return provider.JobState{}, o.classify(ctx, r, timeout, err)
			}
			failures++
			log.Printf("[job %s] WARNING: status check failed (%d/%d): %v", job.ID, failures, o.maxTransientErrors, err)
			if failures >= o.maxTransientErrors {
				return provider.JobState{}, r.fail(KindTransient, fmt.Sprintf("status check failed %d times in a row", failures), err)
			}
		} else {
			failures = 0
			job.Status = state.Status
			if state.Status.Terminal() {
				return state, nil
			}
			r.to(StatePolling)
		}

		select {
		case <-ctx.Done():
			return provider.JobState{}, r.interrupted(ctx, timeout)
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) classify(ctx context.Context, r *run, timeout time.Duration, err error) *Error {
	switch {
	case ctx.Err() != nil:
		return r.interrupted(ctx, timeout)
	case provider.IsPermanent(err):
		return r.fail(KindProvider, "job status unavailable", err)
	default:
		return r.fail(KindTransient, "job status unavailable", err)
	}
}

// release runs on a context detached from the request so cleanup survives timeouts.
func (o *Orchestrator) release(ctx context.Context, staged *storage.StagedAudio) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cleanupTimeout)
	defer cancel()
	o.stager.Release(cctx, staged)
}

func (o *Orchestrator) deleteJob(ctx context.Context, job *types.Job) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cleanupTimeout)
	defer cancel()
	if err := o.adapter.DeleteJob(cctx, job); err != nil {
		log.Printf("[job %s] WARNING: failed to delete provider job: %v", job.ID, err)
	}
}
