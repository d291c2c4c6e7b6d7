package types

import (
	"strings"
	"time"
)

// Job record status constants (server-side queue)
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceGDrive = "gdrive"
	SourceStream = "stream"
	SourceCLI    = "cli"
)

// UnknownLanguage is reported when neither the job nor any result carries a language code.
const UnknownLanguage = "unknown"

// JobStatus is the provider-side lifecycle of a recognition job.
type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobTimedOut  JobStatus = "TIMED_OUT"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimedOut
}

// Job is a provider-assigned recognition job.
type Job struct {
	ID         string
	Provider   string
	Status     JobStatus
	Reason     string   // failure reason reported by the provider
	ResultRef  string   // provider-native pointer to the result (transcript URI, operation name)
	Language   string   // job-level language code, when the provider reports one
	Advisories []string // non-fatal notices raised while building the request
	CreatedAt  time.Time
}

// Segment is one canonical, provider-independent transcript unit.
type Segment struct {
	Transcript   string  `json:"transcript"`
	Confidence   float64 `json:"confidence"`
	LanguageCode string  `json:"language_code"`
	SpeakerTag   *int    `json:"speaker_tag,omitempty"`
}

// HasSpeaker reports whether the segment carries a diarization tag.
func (s Segment) HasSpeaker() bool {
	return s.SpeakerTag != nil
}

// TranscriptionResult is the ordered output of one transcription request.
type TranscriptionResult struct {
	JobID      string
	Provider   string
	Segments   []Segment
	Advisories []string
	Elapsed    time.Duration
}

// Speakers returns the distinct speaker tags in order of first appearance.
func (r *TranscriptionResult) Speakers() []int {
	seen := make(map[int]bool)
	var speakers []int
	for _, seg := range r.Segments {
		if seg.SpeakerTag == nil || seen[*seg.SpeakerTag] {
			continue
		}
		seen[*seg.SpeakerTag] = true
		speakers = append(speakers, *seg.SpeakerTag)
	}
	return speakers
}

// Languages returns the distinct known language codes in order of first appearance.
func (r *TranscriptionResult) Languages() []string {
	seen := make(map[string]bool)
	var langs []string
	for _, seg := range r.Segments {
		if seg.LanguageCode == "" || seg.LanguageCode == UnknownLanguage || seen[seg.LanguageCode] {
			continue
		}
		seen[seg.LanguageCode] = true
		langs = append(langs, seg.LanguageCode)
	}
	return langs
}

// Text joins all segment transcripts with single spaces.
func (r *TranscriptionResult) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		parts = append(parts, seg.Transcript)
	}
	return strings.Join(parts, " ")
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
