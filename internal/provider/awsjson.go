package provider

import (
	"strconv"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// awsTranscript is the JSON document Transcribe writes for a completed job.
type awsTranscript struct {
	JobName string `json:"jobName"`
	Status  string `json:"status"`
	Results struct {
		LanguageCode string `json:"language_code,omitempty"`
		Transcripts  []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		SpeakerLabels *awsSpeakerLabels `json:"speaker_labels,omitempty"`
		Items         []awsItem         `json:"items,omitempty"`
	} `json:"results"`
}

type awsSpeakerLabels struct {
	Speakers int `json:"speakers"`
	Segments []struct {
		StartTime    string `json:"start_time"`
		EndTime      string `json:"end_time"`
		SpeakerLabel string `json:"speaker_label"`
	} `json:"segments"`
}

type awsItem struct {
	StartTime    string           `json:"start_time,omitempty"`
	EndTime      string           `json:"end_time,omitempty"`
	Type         string           `json:"type"`
	Alternatives []awsAlternative `json:"alternatives"`
	SpeakerLabel string           `json:"speaker_label,omitempty"`
	LanguageCode string           `json:"language_code,omitempty"`
}

type awsAlternative struct {
	Confidence string `json:"confidence"`
	Content    string `json:"content"`
}

// awsSpeakerPrefix precedes the speaker number in Transcribe labels ("spk_0").
const awsSpeakerPrefix = "spk_"

func (t *awsTranscript) payload() *types.Payload {
	p := &types.Payload{
		LanguageCode:  t.Results.LanguageCode,
		SpeakerPrefix: awsSpeakerPrefix,
	}

	for _, tr := range t.Results.Transcripts {
		p.Transcripts = append(p.Transcripts, types.Transcript{
			Text:         tr.Transcript,
			LanguageCode: t.Results.LanguageCode,
		})
	}

	for _, it := range t.Results.Items {
		if len(it.Alternatives) == 0 {
			continue
		}
		alt := it.Alternatives[0]
		item := types.Item{
			Kind:         types.ItemKind(it.Type),
			Content:      alt.Content,
			LanguageCode: it.LanguageCode,
		}
		if c, err := strconv.ParseFloat(alt.Confidence, 64); err == nil {
			item.Confidence = c
			item.Scored = true
		}
		if it.StartTime != "" {
			if start, err := strconv.ParseFloat(it.StartTime, 64); err == nil {
				item.Start = start
				item.HasTiming = true
				item.End, _ = strconv.ParseFloat(it.EndTime, 64)
			}
		}
		p.Items = append(p.Items, item)
	}

	if t.Results.SpeakerLabels != nil {
		for _, seg := range t.Results.SpeakerLabels.Segments {
			start, err1 := strconv.ParseFloat(seg.StartTime, 64)
			end, err2 := strconv.ParseFloat(seg.EndTime, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			p.Speakers = append(p.Speakers, types.SpeakerTurn{
				Label: seg.SpeakerLabel,
				Start: start,
				End:   end,
			})
		}
	}

	return p
}
