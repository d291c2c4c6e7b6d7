package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/output"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/provider"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/transcription"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

var (
	// ErrQueueFull is returned by EnqueueJob when no buffer slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by EnqueueJob after Stop.
	ErrStopped = errors.New("worker pool stopped")
)

const (
	queueSize     = 100
	driveAttempts = 3
)

// Transcriber runs one transcription request end to end.
type Transcriber interface {
	Transcribe(ctx context.Context, input types.AudioInput, req types.TranscriptionRequest) (*types.TranscriptionResult, error)
	Capabilities() provider.Capabilities
}

// Exporter publishes a saved transcript and returns a shareable link.
type Exporter interface {
	Upload(meta *storage.TranscriptMetadata, rendered string) (string, error)
}

// WorkerPool manages a pool of workers processing transcription jobs
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	transcriber  Transcriber
	transcoder   *transcription.Transcoder
	localStorage *storage.LocalStorage
	exporter     Exporter
	db           *storage.MetadataDB
	backoff      func(attempt int) time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool. exporter and db are optional.
func NewWorkerPool(
	workerCount int,
	transcriber Transcriber,
	transcoder *transcription.Transcoder,
	localStorage *storage.LocalStorage,
	exporter Exporter,
	db *storage.MetadataDB,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		jobQueue:     make(chan *Job, queueSize),
		workerCount:  workerCount,
		transcriber:  transcriber,
		transcoder:   transcoder,
		localStorage: localStorage,
		exporter:     exporter,
		db:           db,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels in-flight jobs and waits for the workers to exit. Canceled jobs still release
// their staged audio.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.cancel()
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	log.Println("Worker pool stopped")
}

// EnqueueJob adds a job to the queue
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}

	job.Status = types.StatusQueued
	job.CreatedAt = time.Now()

	if wp.db != nil {
		if err := wp.db.CreateJob(job.ID, job.RequestName, job.SourceType); err != nil {
			return fmt.Errorf("failed to record job: %w", err)
		}
	}

	select {
	case wp.jobQueue <- job:
	default:
		wp.setStatus(job, types.StatusFailed, ErrQueueFull)
		return ErrQueueFull
	}
	log.Printf("Job %s enqueued (source: %s, name: %s)", job.ID, job.SourceType, job.RequestName)
	return nil
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)

	for job := range wp.jobQueue {
		// Panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
						id, job.ID, r, string(debug.Stack()))
					wp.setStatus(job, types.StatusFailed, fmt.Errorf("worker panic: %v", r))
					wp.cleanupTempFile(job.FilePath)
				}
			}()

			wp.processJob(wp.ctx, id, job)
		}()
	}
}

// processJob handles the complete transcription pipeline
func (wp *WorkerPool) processJob(ctx context.Context, workerID int, job *Job) {
	log.Printf("Worker %d: Processing job %s", workerID, job.ID)
	wp.setStatus(job, types.StatusProcessing, nil)
	defer wp.cleanupTempFile(job.FilePath)

	// Step 1: Load audio, transcoding what the provider cannot take
	input, release, err := transcription.LoadAudio(ctx, job.FilePath, wp.transcriber.Capabilities(), wp.transcoder)
	defer release()
	if err != nil {
		log.Printf("Worker %d: Audio preparation failed for job %s: %v", workerID, job.ID, err)
		wp.setStatus(job, types.StatusFailed, fmt.Errorf("audio preparation failed: %w", err))
		return
	}

	// Step 2: Transcribe
	result, err := wp.transcriber.Transcribe(ctx, input, job.Request)
	if err != nil {
		log.Printf("Worker %d: Transcription failed for job %s: %v", workerID, job.ID, err)
		wp.setStatus(job, types.StatusFailed, err)
		return
	}
	job.Result = result
	for _, adv := range result.Advisories {
		log.Printf("Worker %d: WARNING - job %s: %s", workerID, job.ID, adv)
	}

	rendered, err := output.Render(result, output.FormatText)
	if err != nil {
		wp.setStatus(job, types.StatusFailed, err)
		return
	}
	meta := storage.NewTranscriptMetadata(job.ID, job.RequestName, result)

	// Step 3: Save locally
	localPath, err := wp.localStorage.SaveTranscript(meta, rendered)
	if err != nil {
		log.Printf("Worker %d: Local save failed for job %s: %v", workerID, job.ID, err)
		wp.setStatus(job, types.StatusFailed, fmt.Errorf("local save failed: %w", err))
		return
	}
	job.LocalPath = localPath
	meta.LocalPath = localPath

	// Step 4: Upload to Google Drive (with retry)
	if wp.exporter != nil {
		job.GDriveURL = wp.export(ctx, workerID, meta, rendered)
	}

	// Step 5: Save metadata to database
	if wp.db != nil {
		rec := &storage.TranscriptRecord{
			JobID:         job.ID,
			RequestName:   job.RequestName,
			SourceType:    job.SourceType,
			Provider:      result.Provider,
			ProviderJobID: result.JobID,
			Languages:     meta.Languages,
			SegmentCount:  len(result.Segments),
			SpeakerCount:  meta.Speakers,
			LocalPath:     localPath,
			GDriveURL:     job.GDriveURL,
			ElapsedSec:    result.Elapsed.Seconds(),
			CreatedAt:     meta.CreatedAt,
		}
		if err := wp.db.SaveTranscript(rec); err != nil {
			log.Printf("Worker %d: Database save failed: %v", workerID, err)
		}
	}

	wp.setStatus(job, types.StatusCompleted, nil)
	log.Printf("Worker %d: Job %s completed successfully (local: %s, gdrive: %s)",
		workerID, job.ID, localPath, job.GDriveURL)
}

// export uploads to Drive with quadratic backoff. Failure is not fatal to the job.
func (wp *WorkerPool) export(ctx context.Context, workerID int, meta *storage.TranscriptMetadata, rendered string) string {
	var err error
	for attempt := 1; attempt <= driveAttempts; attempt++ {
		var url string
		url, err = wp.exporter.Upload(meta, rendered)
		if err == nil {
			return url
		}
		log.Printf("Worker %d: Google Drive upload attempt %d/%d failed: %v", workerID, attempt, driveAttempts, err)
		if attempt == driveAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(wp.backoff(attempt)):
		}
	}
	log.Printf("Worker %d: WARNING - Google Drive upload failed after %d attempts, continuing with local save only", workerID, driveAttempts)
	return ""
}

func (wp *WorkerPool) setStatus(job *Job, status string, jobErr error) {
	job.Status = status
	job.Error = jobErr
	if wp.db == nil {
		return
	}
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	if err := wp.db.UpdateJobStatus(job.ID, status, msg); err != nil {
		log.Printf("Failed to update status of job %s: %v", job.ID, err)
	}
}

// cleanupTempFile removes a temporary file
func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", filePath, err)
	}
}
