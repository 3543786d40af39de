package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects between a muxed video download and audio-only extraction
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// DefaultAudioBitrateKbps is used when an audio request carries no bitrate
const DefaultAudioBitrateKbps = 192

var (
	// ErrInvalidInput is the root of all request validation errors
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyURL is returned when a request has no URL to download
	ErrEmptyURL = fmt.Errorf("%w: url is required", ErrInvalidInput)
)

// DownloadRequest describes one user-initiated download attempt.
// It is passed by value so the orchestrator never shares it between attempts.
type DownloadRequest struct {
	URL               string `json:"url"`
	Mode              Mode   `json:"mode"`
	QualityOrCodec    string `json:"quality_or_codec"`
	BitrateKbps       *int   `json:"bitrate_kbps,omitempty"`
	DestinationFolder string `json:"destination_folder"`
}

// NewVideoRequest creates a request for a video download capped at the given quality label
func NewVideoRequest(url, quality, destinationFolder string) DownloadRequest {
	return DownloadRequest{
		URL:               url,
		Mode:              ModeVideo,
		QualityOrCodec:    quality,
		DestinationFolder: destinationFolder,
	}
}

// NewAudioRequest creates a request for audio extraction to codec at bitrateKbps
func NewAudioRequest(url, codec string, bitrateKbps int, destinationFolder string) DownloadRequest {
	return DownloadRequest{
		URL:               url,
		Mode:              ModeAudio,
		QualityOrCodec:    codec,
		BitrateKbps:       &bitrateKbps,
		DestinationFolder: destinationFolder,
	}
}

// Validate checks the request before any tool invocation
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrEmptyURL
	}
	return nil
}

// Bitrate returns the requested bitrate or the default one
func (r DownloadRequest) Bitrate() int {
	if r.BitrateKbps == nil || *r.BitrateKbps <= 0 {
		return DefaultAudioBitrateKbps
	}
	return *r.BitrateKbps
}

// ParseMode maps a user-facing mode string to a Mode.
// Anything that is not audio is treated as video.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "audio only", "audio-only":
		return ModeAudio
	default:
		return ModeVideo
	}
}

// AttemptState is the display state of a single attempt
type AttemptState string

const (
	StateIdle           AttemptState = "idle"
	StateDownloading    AttemptState = "downloading"
	StatePostProcessing AttemptState = "post_processing"
	StateCompleted      AttemptState = "completed"
	StateFailed         AttemptState = "failed"
	StateRejected       AttemptState = "rejected" // invalid input, tool never invoked
)

// IsTerminal checks if the state ends an attempt
func (s AttemptState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRejected
}

// Attempt is the history record of one download attempt
type Attempt struct {
	ID                string       `json:"id" gorm:"primaryKey"`
	URL               string       `json:"url" gorm:"not null"`
	Mode              Mode         `json:"mode" gorm:"not null"`
	QualityOrCodec    string       `json:"quality_or_codec"`
	BitrateKbps       int          `json:"bitrate_kbps,omitempty"`
	DestinationFolder string       `json:"destination_folder"`
	State             AttemptState `json:"state" gorm:"not null;index"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	CreatedAt         time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

// NewAttempt creates a history record for a request
func NewAttempt(req DownloadRequest) *Attempt {
	a := &Attempt{
		ID:                uuid.New().String(),
		URL:               req.URL,
		Mode:              req.Mode,
		QualityOrCodec:    req.QualityOrCodec,
		DestinationFolder: req.DestinationFolder,
		State:             StateIdle,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if req.Mode == ModeAudio {
		a.BitrateKbps = req.Bitrate()
	}
	return a
}

// MarkCompleted marks the attempt as completed
func (a *Attempt) MarkCompleted() {
	a.State = StateCompleted
	now := time.Now()
	a.CompletedAt = &now
	a.UpdatedAt = now
}

// MarkFailed marks the attempt as failed with the tool error
func (a *Attempt) MarkFailed(err error) {
	a.State = StateFailed
	a.ErrorMessage = err.Error()
	now := time.Now()
	a.CompletedAt = &now
	a.UpdatedAt = now
}

// MarkRejected marks the attempt as rejected before any tool invocation
func (a *Attempt) MarkRejected(err error) {
	a.State = StateRejected
	a.ErrorMessage = err.Error()
	a.UpdatedAt = time.Now()
}

// FileEntry is one file found in a destination folder
type FileEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	ModTime   time.Time `json:"mod_time"`
}
