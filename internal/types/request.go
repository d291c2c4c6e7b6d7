package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is wrapped by every request or input validation failure.
var ErrInvalidRequest = errors.New("invalid transcription request")

// MaxLanguages is the largest candidate list accepted for language identification.
const MaxLanguages = 4

// DefaultLanguages are used when the caller names none. Hebrew goes first for better detection.
var DefaultLanguages = []string{"he-IL", "en-US"}

var languageAliases = map[string]string{
	"iw-IL": "he-IL", // legacy Hebrew code
	"iw":    "he",
}

// CanonicalLanguage maps legacy codes to the ones providers accept.
func CanonicalLanguage(code string) string {
	code = strings.TrimSpace(code)
	if alias, ok := languageAliases[code]; ok {
		return alias
	}
	return code
}

// AudioInput is either owned raw bytes or a reference to audio that already lives remotely.
type AudioInput struct {
	data       []byte
	uri        string
	format     string
	sampleRate int
}

// NewAudioBytes wraps in-memory audio of the given media format ("mp3", "wav", ...).
// sampleRate may be zero when unknown.
func NewAudioBytes(data []byte, format string, sampleRate int) AudioInput {
	return AudioInput{data: data, format: strings.ToLower(format), sampleRate: sampleRate}
}

// NewAudioURI wraps a provider-addressable location such as s3://bucket/key or gs://bucket/key.
func NewAudioURI(uri, format string) AudioInput {
	return AudioInput{uri: uri, format: strings.ToLower(format)}
}

func (a AudioInput) Data() []byte { return a.data }
func (a AudioInput) URI() string { return a.uri }
func (a AudioInput) Format() string { return a.format }
func (a AudioInput) SampleRate() int { return a.sampleRate }
func (a AudioInput) IsRemote() bool { return a.uri != "" }
func (a AudioInput) Size() int { return len(a.data) }

// Validate checks that exactly one of bytes or remote location is set.
func (a AudioInput) Validate() error {
	hasData := len(a.data) > 0
	hasURI := a.uri != ""
	switch {
	case hasData && hasURI:
		return fmt.Errorf("%w: audio input has both content and uri", ErrInvalidRequest)
	case !hasData && !hasURI:
		return fmt.Errorf("%w: either audio content or uri must be provided", ErrInvalidRequest)
	case a.format == "":
		return fmt.Errorf("%w: audio media format is required", ErrInvalidRequest)
	case a.sampleRate < 0:
		return fmt.Errorf("%w: sample rate must not be negative", ErrInvalidRequest)
	}
	return nil
}

// SpeakerRange is the inclusive speaker count range a provider supports.
type SpeakerRange struct {
	Min int
	Max int
}

// TranscriptionRequest carries the caller's language and speaker constraints.
type TranscriptionRequest struct {
	Languages   []string
	MinSpeakers int
	MaxSpeakers int
	Timeout     time.Duration
}

// PrimaryLanguage is the first, preferred language.
func (r TranscriptionRequest) PrimaryLanguage() string {
	if len(r.Languages) == 0 {
		return ""
	}
	return r.Languages[0]
}

// MultiLanguage reports whether automatic language identification is needed.
func (r TranscriptionRequest) MultiLanguage() bool {
	return len(r.Languages) > 1
}

// CanonicalLanguages returns the requested languages with aliases resolved and repeats removed,
// keeping the caller's order.
func (r TranscriptionRequest) CanonicalLanguages() []string {
	seen := make(map[string]bool, len(r.Languages))
	out := make([]string, 0, len(r.Languages))
	for _, lang := range r.Languages {
		c := CanonicalLanguage(lang)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Validate checks the request shape against the provider's supported speaker range.
// It performs no I/O.
func (r TranscriptionRequest) Validate(speakers SpeakerRange) error {
	if len(r.Languages) == 0 {
		return fmt.Errorf("%w: at least one language is required", ErrInvalidRequest)
	}
	if len(r.Languages) > MaxLanguages {
		return fmt.Errorf("%w: maximum %d languages allowed, got %d", ErrInvalidRequest, MaxLanguages, len(r.Languages))
	}
	seen := make(map[string]bool, len(r.Languages))
	for _, lang := range r.Languages {
		if strings.TrimSpace(lang) == "" {
			return fmt.Errorf("%w: empty language code", ErrInvalidRequest)
		}
		canonical := CanonicalLanguage(lang)
		if seen[canonical] {
			return fmt.Errorf("%w: duplicate language %q", ErrInvalidRequest, lang)
		}
		seen[canonical] = true
	}
	if r.MinSpeakers < speakers.Min || r.MinSpeakers > speakers.Max {
		return fmt.Errorf("%w: min-speakers must be between %d and %d", ErrInvalidRequest, speakers.Min, speakers.Max)
	}
	if r.MaxSpeakers < speakers.Min || r.MaxSpeakers > speakers.Max {
		return fmt.Errorf("%w: max-speakers must be between %d and %d", ErrInvalidRequest, speakers.Min, speakers.Max)
	}
	if r.MinSpeakers > r.MaxSpeakers {
		return fmt.Errorf("%w: min-speakers cannot be greater than max-speakers", ErrInvalidRequest)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	}
	return nil
}
