package infrastructure

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// YTDLPExtractor implements domain.Extractor by running the yt-dlp binary
type YTDLPExtractor struct {
	config      *domain.YTDLPConfig
	logsDir     string
	eventLogger *logger.MultiLogger // For structured events only (LogAppError)
}

// NewYTDLPExtractor creates a new yt-dlp extractor
func NewYTDLPExtractor(config *domain.YTDLPConfig, logsDir string, eventLogger *logger.MultiLogger) *YTDLPExtractor {
	return &YTDLPExtractor{
		config:      config,
		logsDir:     logsDir,
		eventLogger: eventLogger,
	}
}

// Name returns the tool name
func (e *YTDLPExtractor) Name() string {
	return "yt-dlp"
}

// BuildArgs renders tool options as yt-dlp command line arguments.
// The URL always comes last, after "--".
func (e *YTDLPExtractor) BuildArgs(url string, opts domain.ToolOptions) []string {
	args := []string{
		"--newline",
		"--progress",
		"--progress-template", progressTemplate,
		"--progress-template", postprocessTemplate,
		"-o", opts.OutputTemplate,
		"-f", string(opts.Format),
	}

	if opts.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeOutputFormat)
	}
	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	}

	for _, pp := range opts.PostProcessors {
		if pp.Key != domain.ExtractAudioKey {
			continue
		}
		args = append(args, "-x", "--audio-format", pp.PreferredCodec)
		if pp.PreferredQuality != "" {
			args = append(args, "--audio-quality", pp.PreferredQuality+"K")
		}
	}

	if opts.Quiet {
		args = append(args, "--quiet")
	}
	if opts.NoWarnings {
		args = append(args, "--no-warnings")
	}

	if e.config.CookieFile != "" && fileExists(e.config.CookieFile) {
		args = append(args, "--cookies", e.config.CookieFile)
	}
	if extra := strings.Fields(e.config.ExtraArgs); len(extra) > 0 {
		args = append(args, extra...)
	}

	return append(args, "--", url)
}

// Extract runs yt-dlp for url and forwards parsed progress lines to hook.
// Hook calls happen on the calling goroutine.
func (e *YTDLPExtractor) Extract(ctx context.Context, url string, opts domain.ToolOptions, hook domain.ProgressHook) error {
	if hook == nil {
		hook = func(domain.ProgressEvent) {}
	}

	args := e.BuildArgs(url, opts)

	logFile, err := e.openLogFile()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	downloadLog := &syncWriter{w: logFile}

	cmdLine := shellescape.QuoteCommand(append([]string{e.config.Binary}, args...))
	writeLogHeader(downloadLog, url, cmdLine)

	cmd := exec.CommandContext(ctx, e.config.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr := &stderrTail{out: downloadLog}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		writeLogFooter(downloadLog, false, fmt.Sprintf("failed to start: %v", err))
		hook(domain.ProgressEvent{Phase: domain.PhaseError})
		return fmt.Errorf("yt-dlp failed to start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if event, ok := ParseProgressLine(line); ok {
			hook(event)
			continue
		}
		fmt.Fprintln(downloadLog, line)
	}
	// drain so Wait does not block on a full pipe after a scanner error
	_, _ = io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		reason := stderr.LastLine()
		writeLogFooter(downloadLog, false, fmt.Sprintf("yt-dlp failed: %v", err))
		hook(domain.ProgressEvent{Phase: domain.PhaseError})
		if e.eventLogger != nil {
			e.eventLogger.LogAppError("yt-dlp failed",
				zap.String("url", url),
				zap.String("stderr", reason),
				zap.Error(err))
		}
		if reason != "" {
			return fmt.Errorf("yt-dlp failed: %s: %w", reason, err)
		}
		return fmt.Errorf("yt-dlp failed: %w", err)
	}

	writeLogFooter(downloadLog, true, "Downloaded: "+url)
	return nil
}

// openLogFile opens the download log file for today.
// Raw tool output for every attempt is appended to this single file.
func (e *YTDLPExtractor) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(e.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := logger.CategoryLogPath(e.logsDir, logger.CategoryDownload, time.Now())
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func writeLogHeader(w io.Writer, url, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n=== [%s] Download: %s ===\n", timestamp, url)
	fmt.Fprintf(w, "$ %s\n", cmdLine)
}

func writeLogFooter(w io.Writer, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(w, "=== END ===\n\n")
}

// syncWriter serializes writes from the stdout and stderr readers
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// stderrTail copies stderr to out and remembers the last non-empty line
type stderrTail struct {
	mu      sync.Mutex
	out     io.Writer
	partial string
	last    string
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := strings.Split(s.partial+string(p), "\n")
	s.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if line = strings.TrimSpace(line); line != "" {
			s.last = line
		}
	}
	return s.out.Write(p)
}

// LastLine returns the last complete or trailing stderr line
func (s *stderrTail) LastLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tail := strings.TrimSpace(s.partial); tail != "" {
		return tail
	}
	return s.last
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
