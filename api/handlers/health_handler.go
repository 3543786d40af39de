package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/yt-extract-go/internal/app"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	runner   *app.AttemptRunner
	hub      *ProgressHub
	binary   string
	lookPath func(string) (string, error)
}

// NewHealthHandler creates a new health handler; binary is the yt-dlp executable to check
func NewHealthHandler(runner *app.AttemptRunner, hub *ProgressHub, binary string) *HealthHandler {
	return &HealthHandler{
		runner:   runner,
		hub:      hub,
		binary:   binary,
		lookPath: exec.LookPath,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Attempt struct {
		Running bool `json:"running"`
	} `json:"attempt"`
	ProgressClients int `json:"progress_clients"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Attempt.Running = h.runner.IsRunning()
	if h.hub != nil {
		response.ProgressClients = h.hub.ClientCount()
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	path, err := h.lookPath(h.binary)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "yt-dlp binary not found: " + h.binary,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "ytdlp": path})
}
