package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/internal/infrastructure"
	"go.uber.org/zap"
)

// FileBrowser lists destination folders and resolves single files in them
type FileBrowser interface {
	List(dir string) ([]domain.FileEntry, error)
	Resolve(dir, name string) (string, error)
}

// FilesHandler serves the result listing and file downloads
type FilesHandler struct {
	browser FileBrowser
	config  *domain.DownloadConfig
	logger  *zap.Logger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(browser FileBrowser, config *domain.DownloadConfig, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{
		browser: browser,
		config:  config,
		logger:  logger,
	}
}

// folder resolves the folder query parameter, answering 400 for folders outside the download directory
func (h *FilesHandler) folder(c *gin.Context) (string, bool) {
	folder, err := h.config.ConfineFolder(c.Query("folder"))
	if err != nil {
		h.logger.Warn("Rejected folder outside download directory",
			zap.String("folder", c.Query("folder")),
			zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return folder, true
}

// ListFiles handles GET /api/v1/files?folder=
func (h *FilesHandler) ListFiles(c *gin.Context) {
	folder, ok := h.folder(c)
	if !ok {
		return
	}

	files, err := h.browser.List(folder)
	if err != nil {
		h.logger.Error("Failed to list files", zap.String("folder", folder), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"folder": folder,
		"count":  len(files),
		"files":  files,
	})
}

// DownloadFile handles GET /api/v1/files/download?folder=&name=
func (h *FilesHandler) DownloadFile(c *gin.Context) {
	folder, ok := h.folder(c)
	if !ok {
		return
	}
	name := c.Query("name")

	path, err := h.browser.Resolve(folder, name)
	if errors.Is(err, infrastructure.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.FileAttachment(path, name)
}
