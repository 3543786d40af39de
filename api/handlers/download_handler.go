package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"go.uber.org/zap"
)

const maxHistoryLimit = 500

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	runner *app.AttemptRunner
	repo   domain.AttemptRepository
	hub    *ProgressHub
	config *domain.DownloadConfig
	logger *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(runner *app.AttemptRunner, repo domain.AttemptRepository, hub *ProgressHub, config *domain.DownloadConfig, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		runner: runner,
		repo:   repo,
		hub:    hub,
		config: config,
		logger: logger,
	}
}

// StartDownloadRequest represents the form submitted by the page
type StartDownloadRequest struct {
	URL         string `json:"url"`
	Mode        string `json:"mode,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Codec       string `json:"codec,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Folder      string `json:"folder,omitempty"`
}

// toDomain fills unset fields from the configured defaults.
// Folders outside the download directory are refused.
func (r StartDownloadRequest) toDomain(config *domain.DownloadConfig) (domain.DownloadRequest, error) {
	url := strings.TrimSpace(r.URL)
	folder, err := config.ConfineFolder(r.Folder)
	if err != nil {
		return domain.DownloadRequest{}, err
	}

	if domain.ParseMode(r.Mode) == domain.ModeAudio {
		codec := r.Codec
		if codec == "" {
			codec = config.DefaultCodec
		}
		bitrate := r.BitrateKbps
		if bitrate <= 0 {
			bitrate = config.DefaultBitrate
		}
		return domain.NewAudioRequest(url, codec, bitrate, folder), nil
	}

	quality := r.Quality
	if quality == "" {
		quality = config.DefaultQuality
	}
	return domain.NewVideoRequest(url, quality, folder), nil
}

// StartDownload handles POST /api/v1/downloads
func (h *DownloadHandler) StartDownload(c *gin.Context) {
	var body StartDownloadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := body.toDomain(h.config)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.runner.Start(req, h.hub.Sink())
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": app.EmptyURLMessage, "attempt_id": id})
		return
	case errors.Is(err, app.ErrAttemptInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to start download", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Download started",
		zap.String("id", id),
		zap.String("url", req.URL),
		zap.String("mode", string(req.Mode)),
		zap.String("folder", req.DestinationFolder))

	c.JSON(http.StatusAccepted, gin.H{
		"attempt_id": id,
		"request":    req,
	})
}

// GetCurrent handles GET /api/v1/downloads/current
func (h *DownloadHandler) GetCurrent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":  h.runner.IsRunning(),
		"snapshot": h.runner.Current(),
	})
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	attempt, err := h.repo.FindByID(c.Param("id"))
	if errors.Is(err, domain.ErrAttemptNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load attempt", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	if state := c.Query("state"); state != "" {
		attempts, err := h.repo.FindByState(domain.AttemptState(state))
		if err != nil {
			h.logger.Error("Failed to list downloads", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, attempts)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.config.HistoryLimit)))
	if err != nil || limit <= 0 {
		limit = h.config.HistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	attempts, err := h.repo.FindRecent(limit)
	if err != nil {
		h.logger.Error("Failed to list downloads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.repo.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetOptions handles GET /api/v1/options
func (h *DownloadHandler) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"modes":     []domain.Mode{domain.ModeVideo, domain.ModeAudio},
		"qualities": domain.QualityLabels,
		"codecs":    domain.AudioCodecs,
		"bitrates":  domain.AudioBitrates,
		"defaults": gin.H{
			"quality":      h.config.DefaultQuality,
			"codec":        h.config.DefaultCodec,
			"bitrate_kbps": h.config.DefaultBitrate,
			"folder":       h.config.ResolveFolder(""),
		},
	})
}
