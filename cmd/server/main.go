package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yourusername/yt-extract-go/api"
	"github.com/yourusername/yt-extract-go/api/handlers"
	"github.com/yourusername/yt-extract-go/api/middleware"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/internal/infrastructure"
	"github.com/yourusername/yt-extract-go/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: ./configs, ~/.yt-extract, /etc/yt-extract)")
	daemon     = flag.Bool("daemon", false, "Detach and run the server in the background")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	if *daemon {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary without -daemon in a detached session
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	args := []string{}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = os.Environ()
	if cwd, err := os.Getwd(); err == nil {
		cmd.Dir = cwd
	}
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// attempt and error category files
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting yt-extract server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("ytdlp", config.YTDLP.Binary),
		zap.String("default_folder", config.Download.ResolveFolder("")))

	if err := createDirectories(config); err != nil {
		return err
	}

	repo, err := infrastructure.NewSQLiteAttemptRepository(config.Download.HistoryDBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	defer repo.Close()

	var recorder domain.AttemptRecorder
	var gatherer prometheus.Gatherer
	if config.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		promRecorder, err := infrastructure.NewPrometheusRecorder(config.Metrics.Namespace, reg)
		if err != nil {
			return err
		}
		recorder = promRecorder
		gatherer = reg
	}

	extractor := infrastructure.NewYTDLPExtractor(&config.YTDLP, config.Download.LogsDir(), multiLog)
	lister := infrastructure.NewDirFileLister()
	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	manager := app.NewDownloadManager(extractor, repo, lister, notifier, recorder, log, multiLog)
	runner := app.NewAttemptRunner(manager, multiLog)
	origins := middleware.NewOriginPolicy(config.Server.AllowedOrigins)
	hub := handlers.NewProgressHub(runner.Current, origins.Allows, log)

	router := api.SetupRouter(api.RouterDeps{
		Config:      config,
		Runner:      runner,
		Repo:        repo,
		Files:       lister,
		Hub:         hub,
		Logger:      log,
		MultiLogger: multiLog,
		Gatherer:    gatherer,
		Origins:     origins,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		return err
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// cancels the in-flight attempt, which kills the yt-dlp process
	if err := runner.Shutdown(ctx); err != nil {
		log.Error("Attempt did not stop in time", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Download.LogsDir(),
		config.Download.ConfigDir(),
		config.Download.ResolveFolder(""),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
