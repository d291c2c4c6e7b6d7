package transcription

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/provider"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// TranscodeSampleRate is the rate of every transcoded file.
const TranscodeSampleRate = 16000

// Transcoder converts media to 16kHz mono PCM WAV with ffmpeg.
type Transcoder struct {
	Binary  string
	TempDir string
}

// NewTranscoder creates a transcoder writing into tempDir.
func NewTranscoder(binary, tempDir string) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Transcoder{Binary: binary, TempDir: tempDir}
}

// NormalizeAudio converts any audio file to 16kHz mono WAV format. A failed or interrupted
// conversion leaves no output file behind.
func (t *Transcoder) NormalizeAudio(ctx context.Context, inputPath string) (string, error) {
	if err := os.MkdirAll(t.TempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	outputPath := filepath.Join(t.TempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, t.Binary,
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y", // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	log.Printf("[transcoder] Converted %s -> %s", filepath.Base(inputPath), outputPath)
	return outputPath, nil
}

// LoadAudio reads path into an AudioInput the adapter accepts, transcoding when the format
// needs it. The returned cleanup removes any temporary file and is safe to call when err is
// non-nil.
func LoadAudio(ctx context.Context, path string, caps provider.Capabilities, tc *Transcoder) (types.AudioInput, func(), error) {
	noop := func() {}

	info, err := os.Stat(path)
	if err != nil {
		return types.AudioInput{}, noop, fmt.Errorf("audio file not found: %w", err)
	}
	if info.IsDir() {
		return types.AudioInput{}, noop, fmt.Errorf("%s is a directory", path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return types.AudioInput{}, noop, err
	}

	if !format.Transcode && caps.SupportsFormat(format.Name) {
		data, err := os.ReadFile(path)
		if err != nil {
			return types.AudioInput{}, noop, fmt.Errorf("failed to read audio: %w", err)
		}
		rate := 0
		if format.FixedRate {
			rate = format.SampleRate
		}
		return types.NewAudioBytes(data, format.Name, rate), noop, nil
	}

	if tc == nil {
		return types.AudioInput{}, noop, fmt.Errorf("format %s requires conversion and no transcoder is configured", format.Name)
	}

	wavPath, err := tc.NormalizeAudio(ctx, path)
	if err != nil {
		return types.AudioInput{}, noop, err
	}
	cleanup := func() {
		if err := os.Remove(wavPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[transcoder] WARNING: failed to remove %s: %v", wavPath, err)
		}
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		cleanup()
		return types.AudioInput{}, noop, fmt.Errorf("failed to read converted audio: %w", err)
	}
	return types.NewAudioBytes(data, "wav", TranscodeSampleRate), cleanup, nil
}
