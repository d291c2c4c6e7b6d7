package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// AWS Transcribe limits
const (
	awsMaxSpeakerLabels = 30
	awsMaxAlternatives  = 2
	awsJobPrefix        = "stt-cli"
)

var awsFormats = []string{"mp3", "mp4", "wav", "flac", "ogg", "amr", "webm", "m4a"}

// TranscribeAPI is the subset of the Transcribe client the adapter uses.
type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, params *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// AWSTranscribe runs batch jobs on Amazon Transcribe. Jobs are submitted and then polled.
type AWSTranscribe struct {
	client     TranscribeAPI
	httpClient *http.Client
	now        func() time.Time
}

// NewAWSTranscribe creates the adapter. httpClient downloads finished transcripts;
// http.DefaultClient is used when nil.
func NewAWSTranscribe(client TranscribeAPI, httpClient *http.Client) *AWSTranscribe {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AWSTranscribe{
		client:     client,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (a *AWSTranscribe) Name() string { return "aws" }

func (a *AWSTranscribe) Capabilities() Capabilities {
	return Capabilities{
		Speakers:    types.SpeakerRange{Min: 1, Max: awsMaxSpeakerLabels},
		InlineLimit: 0,
		Formats:     awsFormats,
	}
}

// Submit starts a transcription job named stt-cli-<hex>-<unix seconds>.
func (a *AWSTranscribe) Submit(ctx context.Context, staged *storage.StagedAudio, req types.TranscriptionRequest) (*types.Job, error) {
	now := a.now()
	name := fmt.Sprintf("%s-%s-%d", awsJobPrefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:8], now.Unix())

	input, advisories, err := a.startInput(name, staged, req)
	if err != nil {
		return nil, Permanent(err)
	}

	log.Printf("[aws] Starting transcription job: %s", name)
	if _, err := a.client.StartTranscriptionJob(ctx, input); err != nil {
		err = fmt.Errorf("start transcription job %s: %w", name, err)
		if isAWSClientFault(err) {
			return nil, Permanent(err)
		}
		return nil, err
	}

	return &types.Job{
		ID:         name,
		Provider:   a.Name(),
		Status:     types.JobSubmitted,
		Advisories: advisories,
		CreatedAt:  now,
	}, nil
}

// startInput builds the job request. A fixed LanguageCode and IdentifyLanguage are mutually
// exclusive, so exactly one of them is set.
func (a *AWSTranscribe) startInput(name string, staged *storage.StagedAudio, req types.TranscriptionRequest) (*transcribe.StartTranscriptionJobInput, []string, error) {
	if staged == nil || !strings.HasPrefix(staged.URI, "s3://") {
		return nil, nil, errors.New("aws transcribe requires audio staged in s3")
	}
	if len(req.Languages) == 0 {
		return nil, nil, errors.New("no language requested")
	}

	input := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		Media:                &ttypes.Media{MediaFileUri: aws.String(staged.URI)},
		MediaFormat:          ttypes.MediaFormat(staged.Format),
		Settings: &ttypes.Settings{
			ShowAlternatives: aws.Bool(true),
			MaxAlternatives:  aws.Int32(awsMaxAlternatives),
		},
	}

	if staged.SampleRate > 0 {
		input.MediaSampleRateHertz = aws.Int32(int32(staged.SampleRate))
	}

	languages := req.CanonicalLanguages()
	if len(languages) > types.MaxLanguages {
		languages = languages[:types.MaxLanguages]
	}
	if len(languages) > 1 {
		options := make([]ttypes.LanguageCode, 0, len(languages))
		for _, lang := range languages {
			options = append(options, ttypes.LanguageCode(lang))
		}
		input.IdentifyLanguage = aws.Bool(true)
		input.LanguageOptions = options
	} else {
		input.LanguageCode = ttypes.LanguageCode(NormalizeLanguageCode(req.PrimaryLanguage()))
	}

	var advisories []string
	// Transcribe rejects MaxSpeakerLabels below 2, so a single expected speaker runs unlabeled.
	if req.MaxSpeakers >= 2 {
		input.Settings.ShowSpeakerLabels = aws.Bool(true)
		input.Settings.MaxSpeakerLabels = aws.Int32(int32(req.MaxSpeakers))
	} else {
		advisories = append(advisories, "speaker diarization skipped: at most one speaker expected")
	}

	return input, advisories, nil
}

// Poll reads the job status once.
func (a *AWSTranscribe) Poll(ctx context.Context, job *types.Job) (JobState, error) {
	out, err := a.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(job.ID),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return JobState{}, Permanent(fmt.Errorf("%w: %s", ErrJobNotFound, job.ID))
		}
		if isAWSClientFault(err) {
			return JobState{}, Permanent(fmt.Errorf("get transcription job %s: %w", job.ID, err))
		}
		return JobState{}, fmt.Errorf("get transcription job %s: %w", job.ID, err)
	}

	tj := out.TranscriptionJob
	if tj == nil {
		return JobState{}, fmt.Errorf("get transcription job %s: empty response", job.ID)
	}

	state := JobState{Language: string(tj.LanguageCode)}
	switch tj.TranscriptionJobStatus {
	case ttypes.TranscriptionJobStatusQueued:
		state.Status = types.JobSubmitted
	case ttypes.TranscriptionJobStatusInProgress:
		state.Status = types.JobRunning
	case ttypes.TranscriptionJobStatusCompleted:
		state.Status = types.JobCompleted
		if tj.Transcript != nil {
			state.ResultRef = aws.ToString(tj.Transcript.TranscriptFileUri)
		}
	case ttypes.TranscriptionJobStatusFailed:
		state.Status = types.JobFailed
		state.Reason = aws.ToString(tj.FailureReason)
		if state.Reason == "" {
			state.Reason = "Unknown error"
		}
	default:
		state.Status = types.JobRunning
	}
	return state, nil
}

// FetchResult downloads and decodes the transcript file of a completed job.
func (a *AWSTranscribe) FetchResult(ctx context.Context, job *types.Job) (*types.Payload, error) {
	if job.ResultRef == "" {
		return nil, fmt.Errorf("transcription job %s has no transcript uri", job.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ResultRef, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download transcript for %s: %w", job.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download transcript for %s: unexpected status %d", job.ID, resp.StatusCode)
	}

	var doc awsTranscript
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse transcript for %s: %w", job.ID, err)
	}

	payload := doc.payload()
	if job.Language != "" {
		payload.LanguageCode = job.Language
	}
	return payload, nil
}

// DeleteJob removes the job record from Transcribe.
func (a *AWSTranscribe) DeleteJob(ctx context.Context, job *types.Job) error {
	_, err := a.client.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(job.ID),
	})
	if err != nil {
		return fmt.Errorf("delete transcription job %s: %w", job.ID, err)
	}
	return nil
}

func isAWSNotFound(err error) bool {
	var nf *ttypes.NotFoundException
	if errors.As(err, &nf) {
		return true
	}
	var br *ttypes.BadRequestException
	if errors.As(err, &br) {
		msg := strings.ToLower(br.ErrorMessage())
		return strings.Contains(msg, "does not exist") || strings.Contains(msg, "couldn't be found")
	}
	return false
}

// awsThrottleCodes are client faults that clear up on their own.
var awsThrottleCodes = map[string]bool{
	"ThrottlingException":      true,
	"LimitExceededException":   true,
	"TooManyRequestsException": true,
	"RequestLimitExceeded":     true,
}

// isAWSClientFault reports whether AWS rejected the call itself, e.g. bad input or access denied.
func isAWSClientFault(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if awsThrottleCodes[apiErr.ErrorCode()] {
		return false
	}
	return apiErr.ErrorFault() == smithy.FaultClient
}
