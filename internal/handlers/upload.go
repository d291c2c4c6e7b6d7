package handlers

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/queue"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/transcription"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// UploadHandler handles file uploads
type UploadHandler struct {
	workerPool *queue.WorkerPool
	defaults   Defaults
	maxSizeMB  int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(workerPool *queue.WorkerPool, defaults Defaults, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		workerPool: workerPool,
		defaults:   defaults,
		maxSizeMB:  maxSizeMB,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	// Get uploaded file
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	// Get request name
	requestName := c.FormValue("name")
	if requestName == "" {
		requestName = "untitled"
	}

	// Validate file size
	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	// Validate file format
	if _, err := transcription.DetectFormat(file.Filename); err != nil {
		return badRequest(c, "ERR_INVALID_FORMAT", err)
	}

	var opts RequestOptions
	if err := c.BodyParser(&opts); err != nil {
		return badRequest(c, "ERR_INVALID_BODY", err)
	}
	req, err := opts.Build(h.defaults)
	if err != nil {
		return badRequest(c, "ERR_INVALID_REQUEST", err)
	}

	// Generate unique filename
	jobID := uuid.New().String()
	extension := filepath.Ext(file.Filename)
	tempPath := filepath.Join(h.defaults.TempDir, fmt.Sprintf("%s%s", jobID, extension))

	// Save file
	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	// Create and enqueue job
	job := queue.NewJob(jobID, requestName, types.SourceUpload, tempPath, req)
	if err := h.workerPool.EnqueueJob(job); err != nil {
		removeTemp(tempPath)
		return enqueueFailed(c, err)
	}

	// Return job ID immediately
	return c.JSON(fiber.Map{
		"job_id":    jobID,
		"status":    "queued",
		"languages": req.Languages,
		"message":   "File uploaded successfully, processing started",
	})
}
