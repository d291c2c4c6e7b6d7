package transcription

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// MediaFormat describes how a file extension is submitted.
type MediaFormat struct {
	Name string
	// SampleRate is the rate assumed for the encoding; zero means the provider reads it from
	// the container header.
	SampleRate int
	// FixedRate marks encodings whose sample rate is defined by the codec itself.
	FixedRate bool
	// Transcode marks containers no provider accepts directly.
	Transcode bool
}

var audioFormats = map[string]MediaFormat{
	".wav":  {Name: "wav", SampleRate: 16000},
	".flac": {Name: "flac", SampleRate: 16000},
	".mp3":  {Name: "mp3", SampleRate: 16000},
	".m4a":  {Name: "m4a", SampleRate: 16000},
	".ogg":  {Name: "ogg", SampleRate: 48000},
	".opus": {Name: "ogg", SampleRate: 48000},
	".webm": {Name: "webm", SampleRate: 48000},
	".amr":  {Name: "amr", SampleRate: 8000, FixedRate: true},
	".awb":  {Name: "awb", SampleRate: 16000, FixedRate: true},

	".mp4": {Name: "mp4", Transcode: true},
	".mov": {Name: "mov", Transcode: true},
	".mkv": {Name: "mkv", Transcode: true},
	".avi": {Name: "avi", Transcode: true},
	".m4v": {Name: "m4v", Transcode: true},
	".aac": {Name: "aac", Transcode: true},
	".wma": {Name: "wma", Transcode: true},
}

// DetectFormat maps a file name to its media format by extension.
func DetectFormat(filename string) (MediaFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, ok := audioFormats[ext]
	if !ok {
		return MediaFormat{}, fmt.Errorf("unsupported file format %q (supported: %s)", ext, strings.Join(SupportedExtensions(), ", "))
	}
	return f, nil
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	_, err := DetectFormat(filename)
	return err == nil
}

// SupportedExtensions lists accepted file extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(audioFormats))
	for ext := range audioFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
