package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/output"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/storage"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TranscriptsHandler serves job status and finished transcripts from the metadata database.
type TranscriptsHandler struct {
	db *storage.MetadataDB
}

// NewTranscriptsHandler creates a new transcripts handler
func NewTranscriptsHandler(db *storage.MetadataDB) *TranscriptsHandler {
	return &TranscriptsHandler{db: db}
}

// Job returns the queue status of one job.
func (h *TranscriptsHandler) Job(c *fiber.Ctx) error {
	job, err := h.db.GetJob(c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "Job not found", "code": "ERR_NOT_FOUND"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(job)
}

// List returns the most recent transcripts.
func (h *TranscriptsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	transcripts, err := h.db.ListTranscripts(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(transcripts)
}

// Get renders one transcript in the format named by ?format= (text by default).
func (h *TranscriptsHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("id")
	format := c.Query("format", output.FormatText)

	rec, err := h.db.GetTranscript(jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "Transcript not found", "code": "ERR_NOT_FOUND"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	meta, err := storage.LoadMetadata(rec.LocalPath)
	if err != nil {
		log.Printf("Failed to load transcript %s: %v", jobID, err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read transcript file"})
	}

	result := &types.TranscriptionResult{
		JobID:      meta.ProviderJobID,
		Provider:   meta.Provider,
		Segments:   meta.Segments,
		Advisories: meta.Advisories,
		Elapsed:    time.Duration(meta.ElapsedSec * float64(time.Second)),
	}
	body, err := output.Render(result, format)
	if err != nil {
		return badRequest(c, "ERR_INVALID_FORMAT", err)
	}

	if format == output.FormatJSON {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	}
	return c.SendString(body)
}
