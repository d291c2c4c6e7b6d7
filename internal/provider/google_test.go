package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1p1beta1"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

func newTestGoogle(t *testing.T, h http.Handler, opts ...GoogleOption) *GoogleSpeech {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]GoogleOption{WithOperationInterval(10 * time.Millisecond)}, opts...)
	g, err := NewGoogleSpeech(context.Background(),
		[]option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication()},
		opts...,
	)
	if err != nil {
		t.Fatalf("NewGoogleSpeech: %v", err)
	}
	return g
}

func TestGoogleSubmitInline(t *testing.T) {
	var body speech.LongRunningRecognizeRequest
	g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/speech:longrunningrecognize") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name": "op-123"}`)
	}))

	staged := &storage.StagedAudio{Inline: []byte("RIFF"), Format: "wav", SampleRate: 16000}
	job, err := g.Submit(context.Background(), staged, types.TranscriptionRequest{
		Languages: []string{"iw-IL", "en-US"}, MinSpeakers: 1, MaxSpeakers: 4, Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if job.ID != "op-123" || job.Provider != "google" {
		t.Errorf("unexpected job %+v", job)
	}
	if body.Audio == nil || body.Audio.Content != "UklGRg==" {
		t.Errorf("audio not sent inline: %+v", body.Audio)
	}
	cfg := body.Config
	if cfg.LanguageCode != "he-IL" || len(cfg.AlternativeLanguageCodes) != 1 || cfg.AlternativeLanguageCodes[0] != "en-US" {
		t.Errorf("languages %q %v", cfg.LanguageCode, cfg.AlternativeLanguageCodes)
	}
	if cfg.Encoding != "LINEAR16" || cfg.SampleRateHertz != 16000 {
		t.Errorf("encoding %s rate %d", cfg.Encoding, cfg.SampleRateHertz)
	}
	// Hebrew has no diarization support
	if cfg.DiarizationConfig != nil || len(job.Advisories) != 1 {
		t.Errorf("diarization %+v advisories %v", cfg.DiarizationConfig, job.Advisories)
	}
}

func TestGoogleSubmitRejected(t *testing.T) {
	g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"code": 400, "message": "bad encoding"}}`)
	}))

	staged := &storage.StagedAudio{Inline: []byte("x"), Format: "flac"}
	_, err := g.Submit(context.Background(), staged, types.TranscriptionRequest{Languages: []string{"en-US"}, MinSpeakers: 1, MaxSpeakers: 2})
	if !IsPermanent(err) {
		t.Fatalf("400 should be permanent, got %v", err)
	}
}

func TestGoogleRecognizeRequest(t *testing.T) {
	g := &GoogleSpeech{}

	req, adv, err := g.recognizeRequest(
		&storage.StagedAudio{URI: "gs://b/audio-1.mp3", Format: "mp3"},
		types.TranscriptionRequest{Languages: []string{"en-US"}, MinSpeakers: 2, MaxSpeakers: 5},
	)
	if err != nil {
		t.Fatal(err)
	}
	if req.Audio.Uri != "gs://b/audio-1.mp3" || req.Audio.Content != "" {
		t.Errorf("audio %+v", req.Audio)
	}
	if req.Config.SampleRateHertz != 16000 {
		t.Errorf("mp3 needs a declared rate, got %d", req.Config.SampleRateHertz)
	}
	d := req.Config.DiarizationConfig
	if d == nil || !d.EnableSpeakerDiarization || d.MinSpeakerCount != 2 || d.MaxSpeakerCount != 5 || len(adv) != 0 {
		t.Errorf("diarization %+v advisories %v", d, adv)
	}

	if _, _, err := g.recognizeRequest(&storage.StagedAudio{URI: "s3://b/k", Format: "mp3"}, types.TranscriptionRequest{Languages: []string{"en-US"}}); err == nil {
		t.Error("s3 uri should be rejected")
	}
	if _, _, err := g.recognizeRequest(&storage.StagedAudio{Inline: []byte("x"), Format: "m4a"}, types.TranscriptionRequest{Languages: []string{"en-US"}}); err == nil {
		t.Error("m4a has no google encoding")
	}
}

func TestGoogleRecognizeRequestSingleSpeaker(t *testing.T) {
	g := &GoogleSpeech{}
	req, adv, err := g.recognizeRequest(
		&storage.StagedAudio{URI: "gs://b/k.flac", Format: "flac"},
		types.TranscriptionRequest{Languages: []string{"en-US"}, MinSpeakers: 1, MaxSpeakers: 1},
	)
	if err != nil {
		t.Fatal(err)
	}
	d := req.Config.DiarizationConfig
	if d == nil || !d.EnableSpeakerDiarization || d.MinSpeakerCount != 1 || d.MaxSpeakerCount != 1 {
		t.Errorf("diarization %+v", d)
	}
	if len(adv) != 0 {
		t.Errorf("unexpected advisories %v", adv)
	}
}

func TestGoogleRecognizeRequestDedupesLanguages(t *testing.T) {
	g := &GoogleSpeech{}
	req, _, err := g.recognizeRequest(
		&storage.StagedAudio{URI: "gs://b/k.flac", Format: "flac"},
		types.TranscriptionRequest{Languages: []string{"he-IL", "en-US", "iw-IL", "en-US"}, MinSpeakers: 1, MaxSpeakers: 2},
	)
	if err != nil {
		t.Fatal(err)
	}
	alt := req.Config.AlternativeLanguageCodes
	if req.Config.LanguageCode != "he-IL" || len(alt) != 1 || alt[0] != "en-US" {
		t.Errorf("languages %q %v", req.Config.LanguageCode, alt)
	}
}

const googleOperationDone = `{
  "name": "op-123",
  "done": true,
  "response": {
    "@type": "type.googleapis.com/google.cloud.speech.v1p1beta1.LongRunningRecognizeResponse",
    "results": [
      {"alternatives": [{"transcript": "hello world", "confidence": 0.9,
        "words": [{"word": "hello", "startTime": "0.100s", "endTime": "0.400s", "confidence": 0.9},
                  {"word": "world", "startTime": "0.500s", "endTime": "0.900s", "confidence": 0.8}]}],
       "languageCode": "en-us"},
      {"alternatives": [{"transcript": "hi", "confidence": 0.95,
        "words": [{"word": "hi", "startTime": "1.300s", "endTime": "1.600s", "confidence": 0.95}]}],
       "languageCode": "en-us"}
    ]
  }
}`

func TestGoogleAwaitAndFetch(t *testing.T) {
	var gets int32
	g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/operations/op-123") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&gets, 1) < 3 {
			io.WriteString(w, `{"name": "op-123"}`)
			return
		}
		io.WriteString(w, googleOperationDone)
	}))

	job := &types.Job{ID: "op-123"}
	state, err := g.Await(context.Background(), job)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if state.Status != types.JobCompleted || state.ResultRef != "op-123" {
		t.Fatalf("state %+v", state)
	}
	if atomic.LoadInt32(&gets) != 3 {
		t.Errorf("expected 3 operation reads, got %d", gets)
	}

	job.ResultRef = state.ResultRef
	p, err := g.FetchResult(context.Background(), job)
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if p.Diarized() || len(p.Transcripts) != 2 || p.Transcripts[0].Text != "hello world" {
		t.Errorf("payload %+v", p)
	}
	if len(p.Items) != 3 || !near(p.Items[2].Start, 1.3) {
		t.Errorf("items %+v", p.Items)
	}
}

func TestGoogleAwaitFailures(t *testing.T) {
	t.Run("operation error", func(t *testing.T) {
		g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"name": "op-1", "done": true, "error": {"code": 3, "message": "audio too long"}}`)
		}))
		state, err := g.Await(context.Background(), &types.Job{ID: "op-1"})
		if err != nil {
			t.Fatal(err)
		}
		if state.Status != types.JobFailed || state.Reason != "audio too long" {
			t.Errorf("state %+v", state)
		}
	})

	t.Run("missing operation", func(t *testing.T) {
		g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error": {"code": 404, "message": "not found"}}`)
		}))
		_, err := g.Await(context.Background(), &types.Job{ID: "op-1"})
		if !IsPermanent(err) || !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected permanent not found, got %v", err)
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		g := newTestGoogle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"name": "op-1"}`)
		}))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := g.Await(ctx, &types.Job{ID: "op-1"})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

// flakyOperation fails the first n reads with 503 and then reports the operation done.
func flakyOperation(n int32, reads *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(reads, 1) <= n {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error": {"code": 503, "message": "backend unavailable"}}`)
			return
		}
		io.WriteString(w, googleOperationDone)
	})
}

func TestGoogleAwaitWaitErrorBudget(t *testing.T) {
	t.Run("tolerated below the bound", func(t *testing.T) {
		var reads int32
		g := newTestGoogle(t, flakyOperation(2, &reads), WithMaxWaitErrors(3))
		state, err := g.Await(context.Background(), &types.Job{ID: "op-123"})
		if err != nil {
			t.Fatalf("Await: %v", err)
		}
		if state.Status != types.JobCompleted || atomic.LoadInt32(&reads) != 3 {
			t.Errorf("state %+v after %d reads", state, atomic.LoadInt32(&reads))
		}
	})

	t.Run("gives up at the bound", func(t *testing.T) {
		var reads int32
		g := newTestGoogle(t, flakyOperation(2, &reads), WithMaxWaitErrors(1))
		_, err := g.Await(context.Background(), &types.Job{ID: "op-123"})
		if err == nil || IsPermanent(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
		if got := atomic.LoadInt32(&reads); got != 1 {
			t.Errorf("expected 1 read, got %d", got)
		}
	})

	t.Run("non-positive keeps the default", func(t *testing.T) {
		g := newTestGoogle(t, http.NotFoundHandler(), WithMaxWaitErrors(0), WithOperationInterval(0))
		if g.maxWaitErrors != googleMaxWaitErrors || g.pollInterval != 10*time.Millisecond {
			t.Errorf("maxWaitErrors=%d pollInterval=%v", g.maxWaitErrors, g.pollInterval)
		}
	})
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGooglePayloadSpeakerTurns(t *testing.T) {
	resp := &speech.LongRunningRecognizeResponse{
		Results: []*speech.SpeechRecognitionResult{
			{
				LanguageCode: "en-us",
				Alternatives: []*speech.SpeechRecognitionAlternative{{
					Transcript: "hello world hi",
					Words: []*speech.WordInfo{
						{Word: "hello", StartTime: "0.1s", EndTime: "0.4s"},
					},
				}},
			},
			{
				LanguageCode: "en-us",
				Alternatives: []*speech.SpeechRecognitionAlternative{{
					Words: []*speech.WordInfo{
						{Word: "hello", StartTime: "0.1s", EndTime: "0.4s", Confidence: 0.9, SpeakerTag: 1},
						{Word: "world", StartTime: "0.5s", EndTime: "0.9s", Confidence: 0.8, SpeakerTag: 1},
						{Word: "hi", StartTime: "1.3s", EndTime: "1.6s", Confidence: 0.95, SpeakerTag: 2},
					},
				}},
			},
		},
	}

	p := googlePayload(resp)
	if len(p.Speakers) != 2 {
		t.Fatalf("speakers %+v", p.Speakers)
	}
	if p.Speakers[0].Label != "1" || p.Speakers[0].Start != 0.1 || p.Speakers[0].End != 0.5 {
		t.Errorf("first turn %+v", p.Speakers[0])
	}
	if p.Speakers[1].Label != "2" || !near(p.Speakers[1].Start, 1.3) {
		t.Errorf("second turn %+v", p.Speakers[1])
	}
	// tagged words replace the untagged per-result words
	if len(p.Items) != 3 {
		t.Errorf("items %d", len(p.Items))
	}
}
