package domain

import "context"

// Extractor runs the external media-extraction tool for a single URL
type Extractor interface {
	// Extract blocks until the tool exits, calling hook for every progress event
	Extract(ctx context.Context, url string, opts ToolOptions, hook ProgressHook) error

	// Name identifies the tool in logs
	Name() string
}

// FileLister enumerates downloaded files in a destination folder
type FileLister interface {
	List(dir string) ([]FileEntry, error)
}

// Notifier reports attempt outcomes to the user outside the UI
type Notifier interface {
	NotifyAttemptStarted(url string, mode Mode)
	NotifyAttemptCompleted(url string, mode Mode)
	NotifyAttemptFailed(url string, mode Mode, err error)
}

// AttemptRecorder observes attempt lifecycle for metrics
type AttemptRecorder interface {
	AttemptStarted(mode Mode)
	AttemptFinished(mode Mode, state AttemptState, seconds float64)
}
