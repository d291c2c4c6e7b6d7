package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1p1beta1"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

const (
	// Inline content above this size must be read from Cloud Storage.
	googleInlineLimit     = 10 * 1024 * 1024
	googleMaxSpeakers     = 30
	googleDefaultInterval = 2 * time.Second
	googleMaxWaitErrors   = 3
)

// googleEncodings maps media formats to Speech API encodings.
var googleEncodings = map[string]string{
	"wav":  "LINEAR16",
	"flac": "FLAC",
	"mp3":  "MP3",
	"ogg":  "OGG_OPUS",
	"webm": "WEBM_OPUS",
	"amr":  "AMR",
	"awb":  "AMR_WB",
}

// googleDefaultRates applies to encodings whose rate is not read from a header.
var googleDefaultRates = map[string]int64{
	"MP3":       16000,
	"OGG_OPUS":  48000,
	"WEBM_OPUS": 48000,
	"AMR":       8000,
	"AMR_WB":    16000,
}

// googleDiarizationLanguages lists primary languages with speaker diarization support.
var googleDiarizationLanguages = map[string]bool{
	"en-US": true, "en-GB": true, "en-AU": true, "en-IN": true, "en-CA": true,
	"es-ES": true, "es-US": true, "es-MX": true,
	"fr-FR": true, "fr-CA": true,
	"de-DE": true, "it-IT": true, "nl-NL": true,
	"pt-BR": true, "pt-PT": true,
	"ja-JP": true, "ko-KR": true, "ru-RU": true, "tr-TR": true,
	"hi-IN": true, "id-ID": true, "pl-PL": true, "sv-SE": true,
}

// GoogleSpeech runs long-running recognition on Google Cloud Speech-to-Text.
// Await blocks while the provider-side operation runs.
type GoogleSpeech struct {
	service       *speech.Service
	pollInterval  time.Duration
	maxWaitErrors int
	model         string
}

// GoogleOption configures a GoogleSpeech adapter.
type GoogleOption func(*GoogleSpeech)

// WithOperationInterval sets how often Await re-reads the long-running operation.
func WithOperationInterval(d time.Duration) GoogleOption {
	return func(g *GoogleSpeech) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithMaxWaitErrors sets how many consecutive operation read errors Await tolerates.
func WithMaxWaitErrors(n int) GoogleOption {
	return func(g *GoogleSpeech) {
		if n > 0 {
			g.maxWaitErrors = n
		}
	}
}

// WithModel selects a recognition model such as "video" or "phone_call".
func WithModel(model string) GoogleOption {
	return func(g *GoogleSpeech) { g.model = model }
}

// NewGoogleSpeech creates the adapter. clientOpts carry credentials or a test endpoint.
func NewGoogleSpeech(ctx context.Context, clientOpts []option.ClientOption, opts ...GoogleOption) (*GoogleSpeech, error) {
	srv, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Speech service: %w", err)
	}
	g := &GoogleSpeech{
		service:       srv,
		pollInterval:  googleDefaultInterval,
		maxWaitErrors: googleMaxWaitErrors,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GoogleSpeech) Name() string { return "google" }

func (g *GoogleSpeech) Capabilities() Capabilities {
	formats := make([]string, 0, len(googleEncodings))
	for f := range googleEncodings {
		formats = append(formats, f)
	}
	return Capabilities{
		Speakers:    types.SpeakerRange{Min: 1, Max: googleMaxSpeakers},
		InlineLimit: googleInlineLimit,
		Formats:     formats,
	}
}

// Submit starts a long-running recognition operation. The job ID is the operation name.
func (g *GoogleSpeech) Submit(ctx context.Context, staged *storage.StagedAudio, req types.TranscriptionRequest) (*types.Job, error) {
	request, advisories, err := g.recognizeRequest(staged, req)
	if err != nil {
		return nil, Permanent(err)
	}

	op, err := g.service.Speech.Longrunningrecognize(request).Context(ctx).Do()
	if err != nil {
		if isClientError(err) {
			return nil, Permanent(fmt.Errorf("longrunningrecognize: %w", err))
		}
		return nil, fmt.Errorf("longrunningrecognize: %w", err)
	}

	log.Printf("[google] Started recognition operation: %s", op.Name)
	return &types.Job{
		ID:         op.Name,
		Provider:   g.Name(),
		Status:     types.JobSubmitted,
		Advisories: advisories,
		CreatedAt:  time.Now(),
	}, nil
}

// recognizeRequest builds the recognition config. The primary language is always the
// languageCode; further candidates go to alternativeLanguageCodes.
func (g *GoogleSpeech) recognizeRequest(staged *storage.StagedAudio, req types.TranscriptionRequest) (*speech.LongRunningRecognizeRequest, []string, error) {
	if staged == nil {
		return nil, nil, errors.New("no staged audio")
	}
	encoding, ok := googleEncodings[staged.Format]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported media format for google speech: %q", staged.Format)
	}

	audio := &speech.RecognitionAudio{}
	switch {
	case staged.IsInline():
		audio.Content = base64.StdEncoding.EncodeToString(staged.Inline)
	case strings.HasPrefix(staged.URI, "gs://"):
		audio.Uri = staged.URI
	default:
		return nil, nil, fmt.Errorf("google speech cannot read audio from %q", staged.URI)
	}

	primary := NormalizeLanguageCode(req.PrimaryLanguage())
	config := &speech.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               primary,
		AudioChannelCount:          1,
		EnableWordConfidence:       true,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
		Model:                      g.model,
	}
	if staged.SampleRate > 0 {
		config.SampleRateHertz = int64(staged.SampleRate)
	} else if rate, ok := googleDefaultRates[encoding]; ok {
		config.SampleRateHertz = rate
	}
	for _, lang := range req.CanonicalLanguages() {
		if lang != primary {
			config.AlternativeLanguageCodes = append(config.AlternativeLanguageCodes, lang)
		}
	}

	var advisories []string
	// Diarization follows the requested range as is, 1..1 included.
	if !googleDiarizationLanguages[primary] {
		advisories = append(advisories, fmt.Sprintf("speaker diarization is not supported for %s; transcript will have no speaker tags", primary))
	} else {
		config.DiarizationConfig = &speech.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int64(req.MinSpeakers),
			MaxSpeakerCount:          int64(req.MaxSpeakers),
		}
	}

	return &speech.LongRunningRecognizeRequest{Config: config, Audio: audio}, advisories, nil
}

// Await re-reads the operation until it is done. Consecutive read errors are tolerated up to the
// configured bound; ctx ends the wait.
func (g *GoogleSpeech) Await(ctx context.Context, job *types.Job) (JobState, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		op, err := g.service.Operations.Get(job.ID).Context(ctx).Do()
		switch {
		case err == nil:
			failures = 0
			if op.Done {
				return operationState(op), nil
			}
		case ctx.Err() != nil:
			return JobState{}, ctx.Err()
		case apiCode(err) == http.StatusNotFound:
			return JobState{}, Permanent(fmt.Errorf("%w: %s", ErrJobNotFound, job.ID))
		default:
			failures++
			log.Printf("[google] Operation %s read failed (%d/%d): %v", job.ID, failures, g.maxWaitErrors, err)
			if failures >= g.maxWaitErrors {
				return JobState{}, fmt.Errorf("get operation %s: %w", job.ID, err)
			}
		}

		select {
		case <-ctx.Done():
			return JobState{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func operationState(op *speech.Operation) JobState {
	if op.Error != nil {
		reason := op.Error.Message
		if reason == "" {
			reason = fmt.Sprintf("operation failed with code %d", op.Error.Code)
		}
		return JobState{Status: types.JobFailed, Reason: reason}
	}
	return JobState{Status: types.JobCompleted, ResultRef: op.Name}
}

// FetchResult reads the finished operation and decodes its response.
func (g *GoogleSpeech) FetchResult(ctx context.Context, job *types.Job) (*types.Payload, error) {
	name := job.ResultRef
	if name == "" {
		name = job.ID
	}
	op, err := g.service.Operations.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get operation %s: %w", name, err)
	}
	if !op.Done {
		return nil, fmt.Errorf("operation %s is not done", name)
	}
	if op.Error != nil {
		return nil, fmt.Errorf("operation %s failed: %s", name, op.Error.Message)
	}

	var resp speech.LongRunningRecognizeResponse
	if len(op.Response) > 0 {
		if err := json.Unmarshal(op.Response, &resp); err != nil {
			return nil, fmt.Errorf("parse operation %s response: %w", name, err)
		}
	}
	return googlePayload(&resp), nil
}

// DeleteJob is a no-op: finished operations cannot be deleted through this API version.
func (g *GoogleSpeech) DeleteJob(ctx context.Context, job *types.Job) error {
	return nil
}

// googlePayload converts a recognition response. With diarization enabled the last result
// repeats every word with its speaker tag; contiguous runs of one tag become speaker turns.
func googlePayload(resp *speech.LongRunningRecognizeResponse) *types.Payload {
	p := &types.Payload{}

	var tagged []*speech.WordInfo
	var taggedLang string
	for _, res := range resp.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		alt := res.Alternatives[0]
		if hasSpeakerTags(alt.Words) {
			tagged = alt.Words
			taggedLang = res.LanguageCode
			continue
		}
		p.Transcripts = append(p.Transcripts, types.Transcript{
			Text:         strings.TrimSpace(alt.Transcript),
			LanguageCode: res.LanguageCode,
		})
		for _, w := range alt.Words {
			p.Items = append(p.Items, wordItem(w, res.LanguageCode))
		}
	}

	if len(tagged) == 0 {
		return p
	}

	// diarized: the tagged word list supersedes the per-result words
	p.Items = p.Items[:0]
	var turn *types.SpeakerTurn
	var turnTag int64
	for _, w := range tagged {
		item := wordItem(w, taggedLang)
		p.Items = append(p.Items, item)
		if turn != nil && w.SpeakerTag == turnTag {
			// a turn ends at the start of its last word so abutting words are not shared
			turn.End = item.Start
			continue
		}
		p.Speakers = append(p.Speakers, types.SpeakerTurn{
			Label: strconv.FormatInt(w.SpeakerTag, 10),
			Start: item.Start,
			End:   item.Start,
		})
		turn = &p.Speakers[len(p.Speakers)-1]
		turnTag = w.SpeakerTag
	}
	return p
}

func hasSpeakerTags(words []*speech.WordInfo) bool {
	for _, w := range words {
		if w.SpeakerTag > 0 {
			return true
		}
	}
	return false
}

func wordItem(w *speech.WordInfo, lang string) types.Item {
	item := types.Item{
		Kind:         types.ItemPronunciation,
		Content:      w.Word,
		Confidence:   w.Confidence,
		Scored:       w.Confidence > 0,
		LanguageCode: lang,
	}
	if start, err := parseOffset(w.StartTime); err == nil {
		item.Start = start
		item.HasTiming = true
	}
	if end, err := parseOffset(w.EndTime); err == nil {
		item.End = end
	}
	return item
}

// parseOffset reads protobuf duration strings such as "1.500s".
func parseOffset(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty offset")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func isClientError(err error) bool {
	code := apiCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
