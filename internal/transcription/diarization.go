package transcription

import (
	"sort"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// Normalize turns a provider payload into ordered segments.
//
// With speaker turns every turn becomes one segment holding the timed words whose start falls
// inside the turn, bounds inclusive. Turns without words are dropped. Without turns the whole
// transcript is one untagged segment. Speaker tags are omitted when fewer than two distinct
// speakers were found.
func Normalize(p *types.Payload) []types.Segment {
	if p == nil {
		return nil
	}
	if p.Diarized() {
		return normalizeDiarized(p)
	}
	return normalizeFlat(p)
}

func normalizeDiarized(p *types.Payload) []types.Segment {
	turns := append([]types.SpeakerTurn(nil), p.Speakers...)
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })

	var words []types.Item
	for _, it := range p.Items {
		if it.Kind == types.ItemPronunciation && it.HasTiming {
			words = append(words, it)
		}
	}
	sort.SliceStable(words, func(i, j int) bool { return words[i].Start < words[j].Start })

	labels := make(map[string]bool)
	for _, t := range turns {
		labels[t.Label] = true
	}
	tagged := len(labels) > 1

	segments := make([]types.Segment, 0, len(turns))
	for _, turn := range turns {
		var parts []string
		var sum float64
		var scored int
		var lang string
		for _, w := range words {
			if w.Start < turn.Start || w.Start > turn.End {
				continue
			}
			parts = append(parts, w.Content)
			if w.Scored {
				sum += w.Confidence
				scored++
			}
			if lang == "" {
				lang = w.LanguageCode
			}
		}
		if len(parts) == 0 {
			continue
		}

		seg := types.Segment{
			Transcript:   strings.Join(parts, " "),
			Confidence:   mean(sum, scored),
			LanguageCode: pickLanguage(p.LanguageCode, lang, firstTranscriptLanguage(p)),
		}
		if tagged {
			seg.SpeakerTag = parseSpeakerTag(turn.Label, p.SpeakerPrefix)
		}
		segments = append(segments, seg)
	}
	return segments
}

func normalizeFlat(p *types.Payload) []types.Segment {
	var texts []string
	for _, t := range p.Transcripts {
		if s := strings.TrimSpace(t.Text); s != "" {
			texts = append(texts, s)
		}
	}

	var words []string
	var sum float64
	var scored int
	var itemLang string
	for _, it := range p.Items {
		if it.Kind != types.ItemPronunciation {
			continue
		}
		words = append(words, it.Content)
		if it.Scored {
			sum += it.Confidence
			scored++
		}
		if itemLang == "" {
			itemLang = it.LanguageCode
		}
	}

	text := strings.Join(texts, " ")
	if text == "" {
		text = strings.Join(words, " ")
	}
	if text == "" {
		return nil
	}

	return []types.Segment{{
		Transcript:   text,
		Confidence:   mean(sum, scored),
		LanguageCode: pickLanguage(p.LanguageCode, firstTranscriptLanguage(p), itemLang),
	}}
}

// parseSpeakerTag reads the number after prefix ("spk_1" -> 1). Unparseable labels have no tag.
func parseSpeakerTag(label, prefix string) *int {
	n, err := strconv.Atoi(strings.TrimPrefix(label, prefix))
	if err != nil {
		return nil
	}
	return types.IntPtr(n)
}

func firstTranscriptLanguage(p *types.Payload) string {
	for _, t := range p.Transcripts {
		if t.LanguageCode != "" {
			return t.LanguageCode
		}
	}
	return ""
}

func pickLanguage(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return types.UnknownLanguage
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
