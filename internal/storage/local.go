package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// LocalStorage handles saving transcripts to the local filesystem
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
	}
}

// TranscriptMetadata is written next to every saved transcript.
type TranscriptMetadata struct {
	JobID         string          `json:"job_id"`
	RequestName   string          `json:"request_name"`
	Provider      string          `json:"provider"`
	ProviderJobID string          `json:"provider_job_id"`
	ElapsedSec    float64         `json:"elapsed_seconds"`
	Speakers      int             `json:"speakers"`
	Languages     []string        `json:"languages"`
	Advisories    []string        `json:"advisories,omitempty"`
	Segments      []types.Segment `json:"segments"`
	CreatedAt     time.Time       `json:"created_at"`
	LocalPath     string          `json:"local_path,omitempty"`
	GDriveURL     string          `json:"gdrive_url,omitempty"`
}

// NewTranscriptMetadata summarizes a finished transcription.
func NewTranscriptMetadata(jobID, requestName string, result *types.TranscriptionResult) *TranscriptMetadata {
	languages := result.Languages()
	if languages == nil {
		languages = []string{}
	}
	return &TranscriptMetadata{
		JobID:         jobID,
		RequestName:   requestName,
		Provider:      result.Provider,
		ProviderJobID: result.JobID,
		ElapsedSec:    result.Elapsed.Seconds(),
		Speakers:      len(result.Speakers()),
		Languages:     languages,
		Advisories:    result.Advisories,
		Segments:      result.Segments,
		CreatedAt:     time.Now(),
	}
}

// SaveTranscript saves the rendered transcript and its metadata to local disk
func (ls *LocalStorage) SaveTranscript(meta *TranscriptMetadata, rendered string) (string, error) {
	// Create dated directory structure: outputs/2025/01/23/
	now := meta.CreatedAt
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// Generate filename: 20250123_143022_podcast_episode.txt
	baseFilename := baseName(now, meta.RequestName)

	txtPath := filepath.Join(dateDir, baseFilename+".txt")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(txtPath, []byte(rendered), 0644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}

	meta.LocalPath = txtPath
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return txtPath, nil
}

// LoadMetadata reads the metadata file written next to a transcript.
func LoadMetadata(txtPath string) (*TranscriptMetadata, error) {
	metaPath := strings.TrimSuffix(txtPath, ".txt") + "_meta.json"
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta TranscriptMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

func baseName(t time.Time, requestName string) string {
	return fmt.Sprintf("%s_%s", t.Format("20060102_150405"), sanitizeFilename(requestName))
}

// sanitizeFilename removes invalid characters from filename
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	result := replacer.Replace(strings.TrimSpace(name))
	if result == "" {
		result = "untitled"
	}
	if len(result) > 100 {
		result = result[:100] // Limit length
	}
	return result
}
