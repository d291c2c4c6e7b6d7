package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/stt-orchestrator/internal/queue"
	"github.com/codebuildervaibhav/stt-orchestrator/internal/types"
)

var errStreamTooLarge = errors.New("stream too large")

// StreamHandler handles WebSocket audio streaming
type StreamHandler struct {
	workerPool *queue.WorkerPool
	defaults   Defaults
	maxSizeMB  int
}

// NewStreamHandler creates a new stream handler. A stream may carry at most maxSizeMB of audio.
func NewStreamHandler(workerPool *queue.WorkerPool, defaults Defaults, maxSizeMB int) *StreamHandler {
	return &StreamHandler{
		workerPool: workerPool,
		defaults:   defaults,
		maxSizeMB:  maxSizeMB,
	}
}

// streamBuffer collects binary frames up to limit bytes; zero means unbounded.
type streamBuffer struct {
	bytes.Buffer
	limit int
}

func (b *streamBuffer) append(chunk []byte) error {
	if b.limit > 0 && b.Len()+len(chunk) > b.limit {
		return errStreamTooLarge
	}
	b.Write(chunk)
	return nil
}

// streamControl is an optional JSON text frame sent before the audio.
type streamControl struct {
	Name string `json:"name"`
	RequestOptions
}

// Handle processes WebSocket connections. Text frames carry the stream name or a JSON
// control object; binary frames carry audio; "END" closes the stream and queues the job.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      = streamBuffer{limit: h.maxSizeMB * 1024 * 1024}
		requestName string
		opts        RequestOptions
		jobID       = uuid.New().String()
	)

	log.Printf("WebSocket connection established: %s", jobID)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			break
		}

		// Handle text messages (control)
		if messageType == websocket.TextMessage {
			msgStr := strings.TrimSpace(string(message))

			// Check for control messages
			if msgStr == "END" {
				log.Printf("Received END signal, processing stream...")
				break
			}

			if strings.HasPrefix(msgStr, "{") {
				var ctrl streamControl
				if err := json.Unmarshal(message, &ctrl); err != nil {
					h.reply(c, errorReply(fmt.Sprintf("invalid control message: %v", err)))
					continue
				}
				if ctrl.Name != "" {
					requestName = ctrl.Name
				}
				opts = ctrl.RequestOptions
				continue
			}

			// Set request name
			if len(msgStr) > 0 && len(msgStr) < 200 {
				requestName = msgStr
				log.Printf("Stream name set to: %s", requestName)
			}
			continue
		}

		// Handle binary messages (audio data)
		if messageType == websocket.BinaryMessage {
			if err := buffer.append(message); err != nil {
				log.Printf("Stream %s exceeded %dMB, dropping it", jobID, h.maxSizeMB)
				h.reply(c, errorReply(fmt.Sprintf("%v (max %dMB)", err, h.maxSizeMB)))
				return
			}
		}
	}

	// If no data received, return
	if buffer.Len() == 0 {
		log.Printf("No audio data received in stream %s", jobID)
		return
	}

	req, err := opts.Build(h.defaults)
	if err != nil {
		h.reply(c, errorReply(err.Error()))
		return
	}

	// Default name if not set
	if requestName == "" {
		requestName = "stream_recording"
	}

	// Save buffered audio to temp file
	tempPath := filepath.Join(h.defaults.TempDir, fmt.Sprintf("%s.webm", jobID))
	if err := os.WriteFile(tempPath, buffer.Bytes(), 0644); err != nil {
		log.Printf("Failed to save stream buffer: %v", err)
		return
	}

	log.Printf("Stream saved to %s (%d bytes)", tempPath, buffer.Len())

	// Create and enqueue job
	job := queue.NewJob(jobID, requestName, types.SourceStream, tempPath, req)
	if err := h.workerPool.EnqueueJob(job); err != nil {
		removeTemp(tempPath)
		h.reply(c, errorReply(err.Error()))
		return
	}

	// Send confirmation
	h.reply(c, map[string]string{"job_id": jobID, "status": "queued"})
}

func (h *StreamHandler) reply(c *websocket.Conn, v any) {
	if err := c.WriteJSON(v); err != nil {
		log.Printf("WebSocket write error: %v", err)
	}
}

func errorReply(msg string) map[string]string {
	return map[string]string{"error": msg}
}
