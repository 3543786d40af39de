package app

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/yourusername/yt-extract-go/internal/domain"
	"go.uber.org/zap"
)

const (
	statusFilenameLimit = 80

	// FinishedStatus is shown once the tool stops downloading and starts post-processing
	FinishedStatus = "**Download finished — now post-processing (merging/converting)...**"

	// ToolErrorStatus is shown when the tool reports an error event
	ToolErrorStatus = "yt-dlp reported an error"
)

// NewProgressHook adapts tool progress events to a sink.
// The hook keeps no state between events and never lets a sink error or panic reach the tool.
func NewProgressHook(sink domain.ProgressSink, log *zap.Logger) domain.ProgressHook {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = NopSink{}
	}

	return func(event domain.ProgressEvent) {
		switch event.Phase {
		case domain.PhaseDownloading:
			if event.TotalBytes != nil && *event.TotalBytes > 0 {
				fraction := ProgressFraction(event.DownloadedBytes, *event.TotalBytes)
				status := DownloadingStatus(event, fraction)
				deliver(log, "progress", func() error { return sink.OnProgress(fraction, status) })
				return
			}
			status := fmt.Sprintf("**Downloading**: %s — %d bytes", event.Filename, event.DownloadedBytes)
			deliver(log, "status", func() error { return sink.OnStatus(status) })
		case domain.PhaseFinished:
			deliver(log, "finished", func() error { return sink.OnFinished(FinishedStatus) })
		case domain.PhaseError:
			deliver(log, "error", func() error { return sink.OnError(ToolErrorStatus) })
		}
	}
}

// ProgressFraction returns downloaded/total clamped to [0,1]
func ProgressFraction(downloaded, total int64) float64 {
	if total <= 0 || downloaded <= 0 {
		return 0
	}
	fraction := float64(downloaded) / float64(total)
	if fraction > 1 {
		return 1
	}
	return fraction
}

// DownloadingStatus renders the status line for an event with a known total
func DownloadingStatus(event domain.ProgressEvent, fraction float64) string {
	eta := "N/A"
	if event.ETASeconds != nil {
		eta = strconv.FormatInt(*event.ETASeconds, 10)
	}
	speed := "N/A"
	if event.Speed != nil && *event.Speed > 0 {
		speed = strconv.FormatFloat(*event.Speed, 'f', 0, 64)
	}

	return fmt.Sprintf("**Downloading**: %s  Progress: **%d%%** — ETA: **%ss** — Speed: **%s B/s**",
		truncateBytes(event.Filename, statusFilenameLimit), int(fraction*100), eta, speed)
}

// truncateBytes cuts s to at most n bytes without splitting a rune
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// deliver calls a sink method, logging and discarding any error or panic
func deliver(log *zap.Logger, kind string, call func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("progress sink panicked",
				zap.String("kind", kind),
				zap.Any("panic", r))
		}
	}()

	if err := call(); err != nil {
		log.Debug("progress sink failed",
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// NopSink discards all progress output
type NopSink struct{}

func (NopSink) OnProgress(float64, string) error { return nil }
func (NopSink) OnStatus(string) error            { return nil }
func (NopSink) OnFinished(string) error          { return nil }
func (NopSink) OnError(string) error             { return nil }
