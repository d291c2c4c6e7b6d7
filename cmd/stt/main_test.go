package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/config"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"version"}, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if out.String() != "stt "+version+"\n" {
		t.Errorf("output %q", out.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"a.mp3", "b.mp3"},
		{"--output-format", "xml", "a.mp3"},
		{"--no-such-flag", "a.mp3"},
	}
	for _, args := range tests {
		var stderr bytes.Buffer
		if code := run(args, &bytes.Buffer{}, &stderr); code != 2 {
			t.Errorf("run(%q) exit %d, want 2", args, code)
		}
		if !strings.Contains(stderr.String(), "Error:") {
			t.Errorf("run(%q) stderr %q", args, stderr.String())
		}
	}
}

func TestParseFlagsAfterPositional(t *testing.T) {
	opts, err := parseFlags([]string{
		"transcribe-me.wav",
		"--languages", "en-US,ar-SA", "--languages", "ru-RU",
		"--max-speakers", "4",
		"--timeout", "90s",
		"--output-format", "json",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.audioFile != "transcribe-me.wav" || opts.outputFormat != "json" {
		t.Errorf("opts %+v", opts)
	}
	if len(opts.languages) != 3 || opts.languages[2] != "ru-RU" {
		t.Errorf("languages %v", opts.languages)
	}

	cfg := config.Default()
	opts.apply(cfg)
	if cfg.Transcription.MaxSpeakers != 4 || cfg.Transcription.MinSpeakers != 1 {
		t.Errorf("speakers %d..%d", cfg.Transcription.MinSpeakers, cfg.Transcription.MaxSpeakers)
	}
	if cfg.Transcription.Timeout != 90*time.Second || len(cfg.Transcription.Languages) != 3 {
		t.Errorf("transcription %+v", cfg.Transcription)
	}
}

func TestApplyProviderFlags(t *testing.T) {
	cfg := config.Default()
	opts := &options{provider: "GOOGLE", gcsBucket: "b", region: ""}
	opts.apply(cfg)
	if cfg.Provider != "google" || cfg.Google.Bucket != "b" || cfg.AWS.Region != "us-east-1" {
		t.Errorf("cfg provider=%s bucket=%s region=%s", cfg.Provider, cfg.Google.Bucket, cfg.AWS.Region)
	}
}
