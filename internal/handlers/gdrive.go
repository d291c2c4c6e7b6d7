package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/queue"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/transcription"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

const driveDownloadTimeout = 5 * time.Minute

var (
	driveFilePattern   = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveQueryPattern  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBareIDPattern = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// DriveDownloader fetches a Drive file with the service's own credentials.
type DriveDownloader interface {
	Download(ctx context.Context, fileID string) ([]byte, string, error)
}

// GDriveHandler handles Google Drive link processing
type GDriveHandler struct {
	workerPool *queue.WorkerPool
	defaults   Defaults
	drive      DriveDownloader
	httpClient *http.Client
	publicURL  string
}

// NewGDriveHandler creates a new Google Drive handler. Without a DriveDownloader only
// publicly shared files can be fetched.
func NewGDriveHandler(workerPool *queue.WorkerPool, defaults Defaults, drive DriveDownloader) *GDriveHandler {
	return &GDriveHandler{
		workerPool: workerPool,
		defaults:   defaults,
		drive:      drive,
		httpClient: &http.Client{Timeout: driveDownloadTimeout},
		publicURL:  "https://drive.google.com/uc?export=download&id=%s",
	}
}

// GDriveRequest represents the request body
type GDriveRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	RequestOptions
}

// Handle processes Google Drive link requests
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	var req GDriveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}

	// Validate URL
	if req.URL == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	// Extract file ID from various Google Drive URL formats
	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid Google Drive URL",
			"code":  "ERR_INVALID_URL",
		})
	}

	transcribeReq, err := req.RequestOptions.Build(h.defaults)
	if err != nil {
		return badRequest(c, "ERR_INVALID_REQUEST", err)
	}

	// Default name if not provided
	if req.Name == "" {
		req.Name = "gdrive_file"
	}

	log.Printf("Downloading from Google Drive: %s", fileID)
	data, filename, err := h.download(c.UserContext(), fileID)
	if err != nil {
		log.Printf("Failed to download from Google Drive: %v", err)
		return c.Status(400).JSON(fiber.Map{
			"error": "File not accessible (may be private or doesn't exist)",
			"code":  "ERR_FILE_NOT_ACCESSIBLE",
		})
	}

	extension := filepath.Ext(filename)
	if _, err := transcription.DetectFormat(filename); err != nil {
		extension = ".mp3"
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.defaults.TempDir, fmt.Sprintf("%s%s", jobID, extension))
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save downloaded file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	// Create and enqueue job
	job := queue.NewJob(jobID, req.Name, types.SourceGDrive, tempPath, transcribeReq)
	if err := h.workerPool.EnqueueJob(job); err != nil {
		removeTemp(tempPath)
		return enqueueFailed(c, err)
	}

	return c.JSON(fiber.Map{
		"job_id":  jobID,
		"status":  "queued",
		"message": "Google Drive file downloaded, processing started",
	})
}

// download prefers the authenticated client and falls back to the public link.
func (h *GDriveHandler) download(ctx context.Context, fileID string) ([]byte, string, error) {
	if h.drive != nil {
		data, name, err := h.drive.Download(ctx, fileID)
		if err == nil {
			return data, name, nil
		}
		log.Printf("WARNING: authenticated Drive download failed, trying public link: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(h.publicURL, fileID), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	name := fileID
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return data, name, nil
}

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// Pattern 1: https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Pattern 2: https://drive.google.com/open?id={ID}
	if matches := driveQueryPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// Pattern 3: Direct ID (25-40 characters)
	if matches := driveBareIDPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove temp file %s: %v", path, err)
	}
}
