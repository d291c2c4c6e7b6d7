package types

// Payload is a provider's terminal result, reduced to the two shapes the normalizer understands:
// word items plus speaker time ranges (diarized), or items plus flat transcripts.
type Payload struct {
	// LanguageCode is the job-level language, empty when the provider did not report one.
	LanguageCode string
	Items        []Item
	Speakers     []SpeakerTurn
	Transcripts  []Transcript
	// SpeakerPrefix is stripped from speaker labels before parsing them as integers.
	SpeakerPrefix string
}

// Diarized reports whether the payload carries speaker time ranges.
func (p *Payload) Diarized() bool {
	return len(p.Speakers) > 0
}

// ItemKind distinguishes recognized words from punctuation.
type ItemKind string

const (
	ItemPronunciation ItemKind = "pronunciation"
	ItemPunctuation   ItemKind = "punctuation"
)

// Item is one recognized word or punctuation mark.
type Item struct {
	Kind         ItemKind
	Content      string
	Confidence   float64
	Scored       bool // Confidence was reported
	Start        float64
	End          float64
	HasTiming    bool
	LanguageCode string
}

// SpeakerTurn attributes the time range [Start, End] seconds to a speaker label.
type SpeakerTurn struct {
	Label string
	Start float64
	End   float64
}

// Transcript is one flat transcript block with the language it was recognized in.
type Transcript struct {
	Text         string
	LanguageCode string
}
