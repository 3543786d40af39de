package infrastructure

import (
	"encoding/json"
	"strings"

	"github.com/yourusername/yt-extract-go/internal/domain"
)

// ProgressPrefix marks stdout lines rendered from our progress template
const ProgressPrefix = "[yt-extract]"

const (
	// progressTemplate makes yt-dlp print its progress dict as JSON on one line
	progressTemplate = "download:" + ProgressPrefix + " %(progress)j"

	// postprocessTemplate lines are not parsed; they land in the download log
	postprocessTemplate = "postprocess:[yt-extract-pp] %(progress.postprocessor)s %(progress.status)s"
)

// progressLine mirrors the subset of yt-dlp's progress dict we consume.
// Byte counts may be floats for estimates.
type progressLine struct {
	Status             string   `json:"status"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	Speed              *float64 `json:"speed"`
	ETA                *float64 `json:"eta"`
	Filename           string   `json:"filename"`
}

// ParseProgressLine converts one stdout line into a progress event.
// Returns false for lines that are not progress template output.
func ParseProgressLine(line string) (domain.ProgressEvent, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ProgressPrefix) {
		return domain.ProgressEvent{}, false
	}

	var pl progressLine
	if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, ProgressPrefix))), &pl); err != nil {
		return domain.ProgressEvent{}, false
	}

	event := domain.ProgressEvent{
		Filename: pl.Filename,
		Speed:    pl.Speed,
	}

	switch pl.Status {
	case "downloading":
		event.Phase = domain.PhaseDownloading
	case "finished":
		event.Phase = domain.PhaseFinished
	case "error":
		event.Phase = domain.PhaseError
	default:
		return domain.ProgressEvent{}, false
	}

	if pl.DownloadedBytes != nil {
		event.DownloadedBytes = int64(*pl.DownloadedBytes)
	}

	// exact total first, estimate second; zero counts as unknown
	switch {
	case pl.TotalBytes != nil && *pl.TotalBytes > 0:
		total := int64(*pl.TotalBytes)
		event.TotalBytes = &total
	case pl.TotalBytesEstimate != nil && *pl.TotalBytesEstimate > 0:
		total := int64(*pl.TotalBytesEstimate)
		event.TotalBytes = &total
	}

	if pl.ETA != nil {
		eta := int64(*pl.ETA)
		event.ETASeconds = &eta
	}

	return event, true
}
