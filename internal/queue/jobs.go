package queue

import (
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// Job represents a transcription job
type Job struct {
	ID          string
	RequestName string
	SourceType  string
	FilePath    string
	Request     types.TranscriptionRequest
	Status      string
	Error       error
	Result      *types.TranscriptionResult
	LocalPath   string
	GDriveURL   string
	CreatedAt   time.Time
}

// NewJob creates a new job with default values
func NewJob(id, requestName, sourceType, filePath string, req types.TranscriptionRequest) *Job {
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		FilePath:    filePath,
		Request:     req,
		Status:      types.StatusQueued,
		CreatedAt:   time.Now(),
	}
}
