package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

func sampleResult() *types.TranscriptionResult {
	return &types.TranscriptionResult{
		JobID:    "stt-cli-0123abcd-1700000000",
		Provider: "aws",
		Segments: []types.Segment{
			{Transcript: "hello world", Confidence: 0.85, LanguageCode: "en-US", SpeakerTag: types.IntPtr(1)},
			{Transcript: "how are you", Confidence: 0.9, LanguageCode: "en-US", SpeakerTag: types.IntPtr(1)},
			{Transcript: "shalom", Confidence: 0.95, LanguageCode: "he-IL", SpeakerTag: types.IntPtr(2)},
		},
	}
}

func TestRenderText(t *testing.T) {
	got, err := Render(sampleResult(), FormatText)
	if err != nil {
		t.Fatal(err)
	}
	want := "[Speaker 1]\nhello world\nhow are you\n\n[Speaker 2]\nshalom"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	untagged := &types.TranscriptionResult{Segments: []types.Segment{{Transcript: "plain"}}}
	got, _ = Render(untagged, FormatText)
	if got != "[Unknown Speaker]\nplain" {
		t.Errorf("untagged text = %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	r := sampleResult()
	r.Segments = append(r.Segments, types.Segment{Transcript: "<b>&", LanguageCode: types.UnknownLanguage})
	r.Advisories = []string{"language identification limited"}

	got, err := Render(r, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasSuffix(got, "\n") || !strings.Contains(got, `"<b>&"`) {
		t.Errorf("unexpected encoding:\n%s", got)
	}

	var doc struct {
		Transcription struct {
			JobID    string `json:"job_id"`
			Segments []struct {
				ID         int  `json:"id"`
				SpeakerTag *int `json:"speaker_tag"`
			} `json:"segments"`
			Summary struct {
				TotalSegments int      `json:"total_segments"`
				Speakers      int      `json:"speakers"`
				Languages     []string `json:"languages"`
				Advisories    []string `json:"advisories"`
			} `json:"summary"`
		} `json:"transcription"`
	}
	if err := json.Unmarshal([]byte(got), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	tr := doc.Transcription
	if tr.JobID != r.JobID || len(tr.Segments) != 4 || tr.Segments[3].ID != 4 || tr.Segments[3].SpeakerTag != nil {
		t.Errorf("segments %+v", tr.Segments)
	}
	s := tr.Summary
	if s.TotalSegments != 4 || s.Speakers != 2 || len(s.Languages) != 2 || len(s.Advisories) != 1 {
		t.Errorf("summary %+v", s)
	}
	if !strings.Contains(got, `"speaker_tag": null`) {
		t.Error("untagged segments should carry an explicit null tag")
	}
}

func TestRenderJSONEmptyLanguages(t *testing.T) {
	r := &types.TranscriptionResult{Segments: []types.Segment{{Transcript: "x", LanguageCode: types.UnknownLanguage}}}
	got, err := Render(r, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `"languages": []`) {
		t.Errorf("languages should be an empty list:\n%s", got)
	}
}

func TestRenderDetailed(t *testing.T) {
	r := sampleResult()
	r.Advisories = []string{"speaker labels disabled"}
	got, err := Render(r, FormatDetailed)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"=== TRANSCRIPTION SUMMARY ===\nTotal segments: 3\nSpeakers detected: 2\nLanguages detected: en-US, he-IL\n",
		"Note: speaker labels disabled\n",
		"=== DETAILED TRANSCRIPTION ===",
		"Segment 1:\n  Speaker: Speaker 1\n  Language: en-US\n  Confidence: 85%\n  Transcript: hello world\n",
		"Segment 3:\n  Speaker: Speaker 2\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("detailed output missing %q:\n%s", want, got)
		}
	}

	plain := &types.TranscriptionResult{Segments: []types.Segment{{Transcript: "x", LanguageCode: types.UnknownLanguage}}}
	got, _ = Render(plain, FormatDetailed)
	if !strings.Contains(got, "Languages detected: Unknown") || !strings.Contains(got, "Speaker: Unknown") {
		t.Errorf("unknown labels missing:\n%s", got)
	}
}

func TestRenderEmptyAndUnknown(t *testing.T) {
	for _, f := range Formats {
		got, err := Render(&types.TranscriptionResult{}, f)
		if err != nil || got != EmptyResult {
			t.Errorf("Render(empty, %s) = %q, %v", f, got, err)
		}
	}
	if got, _ := Render(nil, FormatText); got != EmptyResult {
		t.Errorf("nil result = %q", got)
	}
	if _, err := Render(sampleResult(), "xml"); err == nil || err.Error() != "unsupported format type: xml" {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}
