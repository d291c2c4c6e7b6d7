package transcription

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/provider"
)

var testCaps = provider.Capabilities{Formats: []string{"wav", "mp3", "amr"}}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		file      string
		name      string
		rate      int
		transcode bool
	}{
		{"talk.MP3", "mp3", 16000, false},
		{"voice.opus", "ogg", 48000, false},
		{"call.amr", "amr", 8000, false},
		{"meeting.mp4", "mp4", 0, true},
	}
	for _, tt := range tests {
		f, err := DetectFormat(tt.file)
		if err != nil {
			t.Fatalf("DetectFormat(%s): %v", tt.file, err)
		}
		if f.Name != tt.name || f.SampleRate != tt.rate || f.Transcode != tt.transcode {
			t.Errorf("DetectFormat(%s) = %+v", tt.file, f)
		}
	}

	_, err := DetectFormat("notes.txt")
	if err == nil || !strings.Contains(err.Error(), ".mp3") {
		t.Errorf("unsupported format error should list extensions, got %v", err)
	}
	if ValidateAudioFormat("notes") || !ValidateAudioFormat("a.wav") {
		t.Error("ValidateAudioFormat mismatch")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAudioPassthrough(t *testing.T) {
	input, cleanup, err := LoadAudio(context.Background(), writeFile(t, "a.mp3", "ID3"), testCaps, nil)
	if err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	defer cleanup()

	if input.Format() != "mp3" || string(input.Data()) != "ID3" {
		t.Errorf("input %s %q", input.Format(), input.Data())
	}
	if input.SampleRate() != 0 {
		t.Errorf("container rate should be left to the provider, got %d", input.SampleRate())
	}

	amr, _, err := LoadAudio(context.Background(), writeFile(t, "b.amr", "#!AMR"), testCaps, nil)
	if err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	if amr.SampleRate() != 8000 {
		t.Errorf("codec-fixed rate should be declared, got %d", amr.SampleRate())
	}
}

func TestLoadAudioErrors(t *testing.T) {
	if _, cleanup, err := LoadAudio(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), testCaps, nil); err == nil {
		t.Error("missing file should fail")
	} else {
		cleanup()
	}
	if _, _, err := LoadAudio(context.Background(), writeFile(t, "a.txt", "x"), testCaps, nil); err == nil {
		t.Error("unknown extension should fail")
	}
	if _, _, err := LoadAudio(context.Background(), writeFile(t, "a.mp4", "x"), testCaps, nil); err == nil {
		t.Error("transcoding without a transcoder should fail")
	}
}

// fakeFFmpeg writes a script that copies its input to the last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for ffmpeg")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor a; do out=$a; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAudioTranscodes(t *testing.T) {
	tmp := t.TempDir()
	tc := NewTranscoder(fakeFFmpeg(t, `printf RIFF > "$out"`), tmp)

	input, cleanup, err := LoadAudio(context.Background(), writeFile(t, "clip.mov", "moov"), testCaps, tc)
	if err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	if input.Format() != "wav" || input.SampleRate() != TranscodeSampleRate || string(input.Data()) != "RIFF" {
		t.Errorf("input %s %d %q", input.Format(), input.SampleRate(), input.Data())
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 1 {
		t.Fatalf("expected one converted file, got %d", len(entries))
	}
	cleanup()
	entries, _ = os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("cleanup left %d files", len(entries))
	}
}

func TestNormalizeAudioFailureLeavesNoOutput(t *testing.T) {
	tmp := t.TempDir()
	tc := NewTranscoder(fakeFFmpeg(t, `printf partial > "$out"; echo boom >&2; exit 1`), tmp)

	_, err := tc.NormalizeAudio(context.Background(), "in.mkv")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("failed conversion left %d files", len(entries))
	}
}
