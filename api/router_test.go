package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/yt-extract-go/api/handlers"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/internal/infrastructure"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	config := domain.DefaultConfig()
	config.Download.BaseDir = t.TempDir()
	config.Server.AllowedOrigins = []string{"http://localhost:3000"}

	repo, err := infrastructure.NewSQLiteAttemptRepository(filepath.Join(config.Download.BaseDir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	reg := prometheus.NewRegistry()
	recorder, err := infrastructure.NewPrometheusRecorder("test", reg)
	require.NoError(t, err)

	log := zap.NewNop()
	extractor := infrastructure.NewYTDLPExtractor(&config.YTDLP, config.Download.LogsDir(), nil)
	lister := infrastructure.NewDirFileLister()
	manager := app.NewDownloadManager(extractor, repo, lister, nil, recorder, log, nil)
	runner := app.NewAttemptRunner(manager, nil)

	return SetupRouter(RouterDeps{
		Config:   config,
		Runner:   runner,
		Repo:     repo,
		Files:    lister,
		Hub:      handlers.NewProgressHub(runner.Current, nil, log),
		Logger:   log,
		Gatherer: reg,
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name        string
		method      string
		path        string
		wantStatus  int
		contentType string
		contains    string
	}{
		{"index page", http.MethodGet, "/", http.StatusOK, "text/html", "download-form"},
		{"script", http.MethodGet, "/static/app.js", http.StatusOK, "application/javascript", "/api/v1/ws"},
		{"stylesheet", http.MethodGet, "/static/style.css", http.StatusOK, "text/css", "#bar-fill"},
		{"missing asset", http.MethodGet, "/static/nope.js", http.StatusNotFound, "", ""},
		{"unknown page falls back to index", http.MethodGet, "/history", http.StatusOK, "text/html", "download-form"},
		{"unknown api route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, "application/json", "not found"},
		{"health", http.MethodGet, "/health", http.StatusOK, "application/json", `"status":"ok"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "", "test_attempts_in_progress"},
		{"options", http.MethodGet, "/api/v1/options", http.StatusOK, "application/json", "1080p"},
		{"current", http.MethodGet, "/api/v1/downloads/current", http.StatusOK, "application/json", `"state":"idle"`},
		{"history", http.MethodGet, "/api/v1/downloads", http.StatusOK, "application/json", ""},
		{"log categories", http.MethodGet, "/api/v1/logs/categories", http.StatusOK, "application/json", "attempt"},
		{"preflight", http.MethodOptions, "/api/v1/downloads", http.StatusNoContent, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.contentType != "" {
				assert.Contains(t, w.Header().Get("Content-Type"), tt.contentType)
			}
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}
}

func TestRouter_CrossOriginRequests(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		origin     string
		wantStatus int
		wantACAO   string
	}{
		{"foreign file download", http.MethodGet, "/api/v1/files/download?folder=/etc&name=passwd", "https://evil.example", http.StatusForbidden, ""},
		{"foreign listing", http.MethodGet, "/api/v1/files", "https://evil.example", http.StatusForbidden, ""},
		{"foreign preflight", http.MethodOptions, "/api/v1/downloads", "https://evil.example", http.StatusForbidden, ""},
		{"foreign progress socket", http.MethodGet, "/api/v1/ws", "https://evil.example", http.StatusForbidden, ""},
		{"foreign log socket", http.MethodGet, "/api/v1/logs/ws", "https://evil.example", http.StatusForbidden, ""},
		{"same origin", http.MethodGet, "/api/v1/files", "http://example.com", http.StatusOK, ""},
		{"listed origin", http.MethodGet, "/api/v1/options", "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"listed preflight", http.MethodOptions, "/api/v1/downloads", "http://localhost:3000", http.StatusNoContent, "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantACAO, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
