package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/internal/infrastructure"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubExtractor writes one file into the destination and replays events
type stubExtractor struct {
	mu     sync.Mutex
	urls   []string
	events []domain.ProgressEvent
	err    error
	block  chan struct{}
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Extract(ctx context.Context, url string, opts domain.ToolOptions, hook domain.ProgressHook) error {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, e := range s.events {
		hook(e)
	}
	if s.err != nil {
		return s.err
	}
	dir := filepath.Dir(opts.OutputTemplate)
	return os.WriteFile(filepath.Join(dir, "clip [abc].mp4"), []byte("data"), 0644)
}

func (s *stubExtractor) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

type testServer struct {
	router    *gin.Engine
	runner    *app.AttemptRunner
	repo      *infrastructure.SQLiteAttemptRepository
	hub       *ProgressHub
	config    *domain.DownloadConfig
	extractor *stubExtractor
}

func newTestServer(t *testing.T, extractor *stubExtractor) *testServer {
	t.Helper()

	base := t.TempDir()
	config := &domain.DownloadConfig{
		BaseDir:        base,
		DefaultFolder:  "downloads",
		DefaultQuality: domain.QualityBest,
		DefaultCodec:   "mp3",
		DefaultBitrate: domain.DefaultAudioBitrateKbps,
		HistoryLimit:   10,
	}

	repo, err := infrastructure.NewSQLiteAttemptRepository(filepath.Join(base, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lister := infrastructure.NewDirFileLister()
	log := zap.NewNop()
	manager := app.NewDownloadManager(extractor, repo, lister, nil, nil, log, nil)
	runner := app.NewAttemptRunner(manager, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})
	hub := NewProgressHub(runner.Current, nil, log)

	downloads := NewDownloadHandler(runner, repo, hub, config, log)
	files := NewFilesHandler(lister, config, log)

	r := gin.New()
	r.POST("/api/v1/downloads", downloads.StartDownload)
	r.GET("/api/v1/downloads", downloads.ListDownloads)
	r.GET("/api/v1/downloads/current", downloads.GetCurrent)
	r.GET("/api/v1/downloads/stats", downloads.GetStats)
	r.GET("/api/v1/downloads/:id", downloads.GetDownload)
	r.GET("/api/v1/options", downloads.GetOptions)
	r.GET("/api/v1/files", files.ListFiles)
	r.GET("/api/v1/files/download", files.DownloadFile)
	r.GET("/api/v1/ws", hub.HandleWebSocket)

	return &testServer{router: r, runner: runner, repo: repo, hub: hub, config: config, extractor: extractor}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStartDownload_EmptyURL(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, app.EmptyURLMessage, body["error"])
	assert.Empty(t, s.extractor.URLs())

	recorded, err := s.repo.FindByID(body["attempt_id"])
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, recorded.State)
}

func TestStartDownload_VideoDefaults(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/watch?v=1"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		AttemptID string                 `json:"attempt_id"`
		Request   domain.DownloadRequest `json:"request"`
	}
	decode(t, w, &body)
	assert.NotEmpty(t, body.AttemptID)
	assert.Equal(t, domain.ModeVideo, body.Request.Mode)
	assert.Equal(t, domain.QualityBest, body.Request.QualityOrCodec)
	assert.Equal(t, filepath.Join(s.config.BaseDir, "downloads"), body.Request.DestinationFolder)

	s.runner.Wait()

	recorded, err := s.repo.FindByID(body.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, recorded.State)

	w = s.do(http.MethodGet, "/api/v1/downloads/current", nil)
	var current struct {
		Running  bool         `json:"running"`
		Snapshot app.Snapshot `json:"snapshot"`
	}
	decode(t, w, &current)
	assert.False(t, current.Running)
	assert.Equal(t, body.AttemptID, current.Snapshot.AttemptID)
	assert.Equal(t, domain.StateCompleted, current.Snapshot.State)
	require.Len(t, current.Snapshot.Files, 1)
	assert.Equal(t, "clip [abc].mp4", current.Snapshot.Files[0].Name)
}

func TestStartDownload_AudioFields(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{
		URL:         "https://example.com/a",
		Mode:        "audio",
		Codec:       "m4a",
		BitrateKbps: 320,
		Folder:      "music",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		Request domain.DownloadRequest `json:"request"`
	}
	decode(t, w, &body)
	assert.Equal(t, domain.ModeAudio, body.Request.Mode)
	assert.Equal(t, "m4a", body.Request.QualityOrCodec)
	require.NotNil(t, body.Request.BitrateKbps)
	assert.Equal(t, 320, *body.Request.BitrateKbps)
	assert.Equal(t, filepath.Join(s.config.BaseDir, "music"), body.Request.DestinationFolder)
	s.runner.Wait()
}

func TestStartDownload_Busy(t *testing.T) {
	extractor := &stubExtractor{block: make(chan struct{})}
	s := newTestServer(t, extractor)

	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/1"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(extractor.block)
	s.runner.Wait()
	assert.Equal(t, []string{"https://example.com/1"}, extractor.URLs())
}

func TestStartDownload_BadJSON(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/downloads", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryAndStats(t *testing.T) {
	s := newTestServer(t, &stubExtractor{err: errors.New("yt-dlp failed: ERROR: Unsupported URL")})

	s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: ""})
	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/x"})
	require.Equal(t, http.StatusAccepted, w.Code)
	s.runner.Wait()

	w = s.do(http.MethodGet, "/api/v1/downloads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var attempts []domain.Attempt
	decode(t, w, &attempts)
	assert.Len(t, attempts, 2)

	w = s.do(http.MethodGet, "/api/v1/downloads?state=failed", nil)
	decode(t, w, &attempts)
	require.Len(t, attempts, 1)
	assert.Equal(t, "yt-dlp failed: ERROR: Unsupported URL", attempts[0].ErrorMessage)

	w = s.do(http.MethodGet, "/api/v1/downloads/stats", nil)
	var stats domain.AttemptStats
	decode(t, w, &stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestGetDownload_NotFound(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodGet, "/api/v1/downloads/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOptions(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodGet, "/api/v1/options", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Qualities []string `json:"qualities"`
		Codecs    []string `json:"codecs"`
		Bitrates  []int    `json:"bitrates"`
		Defaults  struct {
			Quality string `json:"quality"`
			Bitrate int    `json:"bitrate_kbps"`
		} `json:"defaults"`
	}
	decode(t, w, &body)
	assert.Equal(t, domain.QualityLabels, body.Qualities)
	assert.Equal(t, domain.AudioCodecs, body.Codecs)
	assert.Equal(t, domain.AudioBitrates, body.Bitrates)
	assert.Equal(t, domain.QualityBest, body.Defaults.Quality)
	assert.Equal(t, 192, body.Defaults.Bitrate)
}

func TestFiles_ListAndDownload(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})
	folder := filepath.Join(s.config.BaseDir, "downloads")
	require.NoError(t, os.MkdirAll(folder, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "song [x1].mp3"), []byte("abc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "video.mp4.part"), []byte("partial"), 0644))

	w := s.do(http.MethodGet, "/api/v1/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Folder string             `json:"folder"`
		Files  []domain.FileEntry `json:"files"`
	}
	decode(t, w, &listing)
	assert.Equal(t, folder, listing.Folder)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "song [x1].mp3", listing.Files[0].Name)

	w = s.do(http.MethodGet, "/api/v1/files/download?name=song%20%5Bx1%5D.mp3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	tests := []string{"../history.db", "video.mp4.part", "missing.mp4", ""}
	for _, name := range tests {
		t.Run("rejects "+name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/v1/files/download?name="+name, nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestFiles_MissingFolderIsEmpty(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	w := s.do(http.MethodGet, "/api/v1/files?folder=nowhere", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Count int                `json:"count"`
		Files []domain.FileEntry `json:"files"`
	}
	decode(t, w, &listing)
	assert.Equal(t, 0, listing.Count)
	assert.NotNil(t, listing.Files)
}

func TestFiles_FoldersOutsideBaseRejected(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "id_rsa"), []byte("SECRET-KEY"), 0600))

	tests := []struct {
		name string
		path string
	}{
		{"list absolute", "/api/v1/files?folder=" + url.QueryEscape(outside)},
		{"list relative escape", "/api/v1/files?folder=" + url.QueryEscape("../../..")},
		{"download absolute", "/api/v1/files/download?folder=" + url.QueryEscape(outside) + "&name=id_rsa"},
		{"download relative escape", "/api/v1/files/download?folder=" + url.QueryEscape("../"+filepath.Base(outside)) + "&name=id_rsa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotContains(t, w.Body.String(), "SECRET-KEY")
			assert.Contains(t, w.Body.String(), "inside the download directory")
		})
	}
}

func TestStartDownload_FolderOutsideBase(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	for _, folder := range []string{t.TempDir(), "../elsewhere"} {
		w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/v", Folder: folder})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	assert.False(t, s.runner.IsRunning())
	assert.Empty(t, s.extractor.URLs())
}

func TestProgressHub_StreamsAttempt(t *testing.T) {
	total := int64(200)
	extractor := &stubExtractor{
		block: make(chan struct{}),
		events: []domain.ProgressEvent{
			{Phase: domain.PhaseDownloading, DownloadedBytes: 100, TotalBytes: &total, Filename: "clip.mp4"},
			{Phase: domain.PhaseFinished},
		},
	}
	s := newTestServer(t, extractor)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg ProgressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, domain.StateIdle, msg.State)
	assert.Equal(t, 1, s.hub.ClientCount())

	w := s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: "https://example.com/v"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		AttemptID string `json:"attempt_id"`
	}
	decode(t, w, &accepted)

	// a rejected request during the attempt only answers its caller
	w = s.do(http.MethodPost, "/api/v1/downloads", StartDownloadRequest{URL: " "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	close(extractor.block)
	s.runner.Wait()

	var received []ProgressMessage
	for {
		var m ProgressMessage
		require.NoError(t, conn.ReadJSON(&m))
		received = append(received, m)
		if m.Type == MessageState && m.State.IsTerminal() {
			break
		}
	}

	require.NotEmpty(t, received)
	assert.Equal(t, MessageStarted, received[0].Type)
	assert.Equal(t, accepted.AttemptID, received[0].AttemptID)

	types := make([]string, 0, len(received))
	for _, m := range received {
		types = append(types, m.Type)
		assert.NotEqual(t, domain.StateRejected, m.State)
		assert.NotEqual(t, app.EmptyURLMessage, m.Status)
	}
	assert.Contains(t, types, MessageProgress)
	assert.Contains(t, types, MessageFinished)

	for _, m := range received {
		if m.Type == MessageProgress {
			require.NotNil(t, m.Fraction)
			assert.Equal(t, 0.5, *m.Fraction)
		}
	}
	last := received[len(received)-1]
	assert.Equal(t, domain.StateCompleted, last.State)
}

func TestProgressHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewProgressHub(nil, nil, zap.NewNop())
	sink := hub.Sink()

	assert.NoError(t, sink.OnProgress(0.2, "x"))
	assert.NoError(t, sink.OnStatus("x"))
	assert.NoError(t, sink.OnFinished("x"))
	assert.NoError(t, sink.OnError("x"))
	sink.OnState(domain.StateFailed)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestProgressHub_DropsSlowClient(t *testing.T) {
	hub := NewProgressHub(nil, nil, zap.NewNop())
	client := &wsClient{send: make(chan ProgressMessage, 1)}
	hub.add(client)

	hub.Broadcast(ProgressMessage{Type: MessageStatus})
	assert.Equal(t, 1, hub.ClientCount())

	hub.Broadcast(ProgressMessage{Type: MessageStatus})
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-client.send
	assert.True(t, open)
	_, open = <-client.send
	assert.False(t, open)
}

func TestHealthHandler(t *testing.T) {
	runner := app.NewAttemptRunner(nil, nil)
	hub := NewProgressHub(runner.Current, nil, zap.NewNop())
	hub.add(&wsClient{send: make(chan ProgressMessage, 1)})
	h := NewHealthHandler(runner, hub, "yt-dlp")

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Attempt.Running)
	assert.Equal(t, 1, health.ProgressClients)

	h.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.lookPath = func(string) (string, error) { return "/usr/bin/yt-dlp", nil }
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/usr/bin/yt-dlp")
}

func TestLogHandler(t *testing.T) {
	logsDir := t.TempDir()
	today := time.Now()
	lines := `{"level":"info","timestamp":"2024-01-01T00:00:00Z","message":"attempt_started","id":"a1"}
{"level":"info","timestamp":"2024-01-01T00:00:01Z","message":"attempt_completed","id":"a1"}
`
	require.NoError(t, os.WriteFile(logger.CategoryLogPath(logsDir, logger.CategoryAttempt, today), []byte(lines), 0644))

	h := NewLogHandler(logsDir)
	r := gin.New()
	r.GET("/api/v1/logs/categories", h.GetCategories)
	r.GET("/api/v1/logs/:category", h.GetLogs)
	r.GET("/api/v1/logs/:category/search", h.SearchLogs)
	r.GET("/api/v1/logs/:category/export", h.ExportLogs)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{"read", "/api/v1/logs/attempt", http.StatusOK, 2},
		{"read limited", "/api/v1/logs/attempt?limit=1", http.StatusOK, 1},
		{"search", "/api/v1/logs/attempt/search?q=completed", http.StatusOK, 1},
		{"search needs query", "/api/v1/logs/attempt/search", http.StatusBadRequest, -1},
		{"unknown category", "/api/v1/logs/queue", http.StatusBadRequest, -1},
		{"bad date", "/api/v1/logs/attempt?date=01-01-2024", http.StatusBadRequest, -1},
		{"other day is empty", "/api/v1/logs/attempt?date=2001-01-01", http.StatusOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCount >= 0 {
				var body struct {
					Count int `json:"count"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCount, body.Count)
			}
		})
	}

	w := get("/api/v1/logs/categories")
	assert.Contains(t, w.Body.String(), "download")

	w = get("/api/v1/logs/attempt/export")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "attempt_completed")
}
