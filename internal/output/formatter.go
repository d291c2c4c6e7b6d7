// Package output renders transcription results for people and scripts.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// Supported output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatDetailed = "detailed"
)

// EmptyResult is rendered for a result without segments, in every format.
const EmptyResult = "No transcription results found."

// Formats lists the accepted format names.
var Formats = []string{FormatText, FormatJSON, FormatDetailed}

// Render formats result as text, json or detailed.
func Render(result *types.TranscriptionResult, format string) (string, error) {
	switch format {
	case FormatText, FormatJSON, FormatDetailed:
	default:
		return "", fmt.Errorf("unsupported format type: %s", format)
	}
	if result == nil || len(result.Segments) == 0 {
		return EmptyResult, nil
	}

	switch format {
	case FormatJSON:
		return renderJSON(result)
	case FormatDetailed:
		return renderDetailed(result), nil
	default:
		return renderText(result), nil
	}
}

// renderText groups consecutive segments of one speaker under a single header.
func renderText(result *types.TranscriptionResult) string {
	var lines []string
	var current *int
	for i, seg := range result.Segments {
		if i == 0 || !sameSpeaker(current, seg.SpeakerTag) {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, "["+speakerLabel(seg.SpeakerTag, "Unknown Speaker")+"]")
			current = seg.SpeakerTag
		}
		lines = append(lines, seg.Transcript)
	}
	return strings.Join(lines, "\n")
}

type jsonSegment struct {
	ID           int     `json:"id"`
	Transcript   string  `json:"transcript"`
	Confidence   float64 `json:"confidence"`
	SpeakerTag   *int    `json:"speaker_tag"`
	LanguageCode string  `json:"language_code"`
}

type jsonSummary struct {
	TotalSegments int      `json:"total_segments"`
	Speakers      int      `json:"speakers"`
	Languages     []string `json:"languages"`
	Advisories    []string `json:"advisories,omitempty"`
}

type jsonDocument struct {
	Transcription struct {
		JobID    string        `json:"job_id,omitempty"`
		Provider string        `json:"provider,omitempty"`
		Segments []jsonSegment `json:"segments"`
		Summary  jsonSummary   `json:"summary"`
	} `json:"transcription"`
}

func renderJSON(result *types.TranscriptionResult) (string, error) {
	var doc jsonDocument
	doc.Transcription.JobID = result.JobID
	doc.Transcription.Provider = result.Provider
	doc.Transcription.Segments = make([]jsonSegment, 0, len(result.Segments))
	for i, seg := range result.Segments {
		doc.Transcription.Segments = append(doc.Transcription.Segments, jsonSegment{
			ID:           i + 1,
			Transcript:   seg.Transcript,
			Confidence:   seg.Confidence,
			SpeakerTag:   seg.SpeakerTag,
			LanguageCode: seg.LanguageCode,
		})
	}

	languages := result.Languages()
	if languages == nil {
		languages = []string{}
	}
	doc.Transcription.Summary = jsonSummary{
		TotalSegments: len(result.Segments),
		Speakers:      len(result.Speakers()),
		Languages:     languages,
		Advisories:    result.Advisories,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func renderDetailed(result *types.TranscriptionResult) string {
	var b strings.Builder

	languages := "Unknown"
	if langs := result.Languages(); len(langs) > 0 {
		languages = strings.Join(langs, ", ")
	}

	b.WriteString("=== TRANSCRIPTION SUMMARY ===\n")
	fmt.Fprintf(&b, "Total segments: %d\n", len(result.Segments))
	fmt.Fprintf(&b, "Speakers detected: %d\n", len(result.Speakers()))
	fmt.Fprintf(&b, "Languages detected: %s\n", languages)
	for _, adv := range result.Advisories {
		fmt.Fprintf(&b, "Note: %s\n", adv)
	}
	b.WriteString("\n=== DETAILED TRANSCRIPTION ===\n\n")

	for i, seg := range result.Segments {
		fmt.Fprintf(&b, "Segment %d:\n", i+1)
		fmt.Fprintf(&b, "  Speaker: %s\n", speakerLabel(seg.SpeakerTag, "Unknown"))
		fmt.Fprintf(&b, "  Language: %s\n", seg.LanguageCode)
		fmt.Fprintf(&b, "  Confidence: %d%%\n", int(seg.Confidence*100))
		fmt.Fprintf(&b, "  Transcript: %s\n", seg.Transcript)
		if i < len(result.Segments)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func speakerLabel(tag *int, unknown string) string {
	if tag == nil {
		return unknown
	}
	return fmt.Sprintf("Speaker %d", *tag)
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
