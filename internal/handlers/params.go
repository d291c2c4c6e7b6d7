package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

// Defaults holds what every intake handler needs besides the worker pool.
type Defaults struct {
	// Request supplies languages, speaker bounds and timeout when the caller omits them.
	Request types.TranscriptionRequest
	// Speakers is the provider's supported speaker range.
	Speakers types.SpeakerRange
	TempDir  string
}

// RequestOptions are the per-request overrides accepted by every intake route.
type RequestOptions struct {
	Languages   string      `json:"languages" form:"languages"`
	MinSpeakers json.Number `json:"min_speakers" form:"min_speakers"`
	MaxSpeakers json.Number `json:"max_speakers" form:"max_speakers"`
}

// Build merges the overrides into the defaults and validates the result.
func (o RequestOptions) Build(d Defaults) (types.TranscriptionRequest, error) {
	req := d.Request
	req.Languages = append([]string(nil), d.Request.Languages...)

	if o.Languages != "" {
		req.Languages = nil
		for _, lang := range strings.Split(o.Languages, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				req.Languages = append(req.Languages, lang)
			}
		}
	}

	var err error
	if req.MinSpeakers, err = intOption(string(o.MinSpeakers), "min_speakers", req.MinSpeakers); err != nil {
		return req, err
	}
	if req.MaxSpeakers, err = intOption(string(o.MaxSpeakers), "max_speakers", req.MaxSpeakers); err != nil {
		return req, err
	}

	if err := req.Validate(d.Speakers); err != nil {
		return req, err
	}
	return req, nil
}

func intOption(v, name string, def int) (int, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", types.ErrInvalidRequest, name)
	}
	return n, nil
}

func badRequest(c *fiber.Ctx, code string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func enqueueFailed(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "ERR_QUEUE_UNAVAILABLE",
	})
}
