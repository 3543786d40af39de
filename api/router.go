package api

import (
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/yt-extract-go/api/handlers"
	"github.com/yourusername/yt-extract-go/api/middleware"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"github.com/yourusername/yt-extract-go/web"
)

// RouterDeps carries everything the HTTP surface needs
type RouterDeps struct {
	Config      *domain.Config
	Runner      *app.AttemptRunner
	Repo        domain.AttemptRepository
	Files       handlers.FileBrowser
	Hub         *handlers.ProgressHub
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	Gatherer    prometheus.Gatherer      // nil disables /metrics
	Origins     *middleware.OriginPolicy // nil builds one from Config.Server.AllowedOrigins
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger, deps.MultiLogger))
	origins := deps.Origins
	if origins == nil {
		origins = middleware.NewOriginPolicy(deps.Config.Server.AllowedOrigins)
	}
	router.Use(middleware.CORS(origins))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Runner, deps.Hub, deps.Config.YTDLP.Binary)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	logsDir := deps.Config.Download.LogsDir()

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(deps.Runner, deps.Repo, deps.Hub, &deps.Config.Download, deps.Logger)
		v1.GET("/options", downloadHandler.GetOptions)

		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.StartDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/current", downloadHandler.GetCurrent)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/:id", downloadHandler.GetDownload)
		}

		filesHandler := handlers.NewFilesHandler(deps.Files, &deps.Config.Download, deps.Logger)
		files := v1.Group("/files")
		{
			files.GET("", filesHandler.ListFiles)
			files.GET("/download", filesHandler.DownloadFile)
		}

		v1.GET("/ws", deps.Hub.HandleWebSocket)

		logHandler := handlers.NewLogHandler(logsDir)
		logWSHandler := handlers.NewLogWebSocketHandler(logsDir, origins.Allows, deps.Logger)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/ws", logWSHandler.HandleWebSocket)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	// Embedded page
	templatesFS := web.Templates
	staticFS := web.Static

	router.GET("/", func(c *gin.Context) {
		serveFile(c, templatesFS, "index.html")
	})
	router.GET("/static/*filepath", func(c *gin.Context) {
		serveFile(c, staticFS, strings.TrimPrefix(c.Param("filepath"), "/"))
	})

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		serveFile(c, templatesFS, "index.html")
	})

	return router
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveFile serves a file from an embedded filesystem with proper content type
func serveFile(c *gin.Context, fsys fs.FS, filePath string) {
	file, err := fsys.Open(filePath)
	if err != nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to read file: %v", err)
		return
	}

	contentType, ok := contentTypes[path.Ext(filePath)]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, content)
}
