package domain

// Phase is the stage reported by the extraction tool in a progress event
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseFinished    Phase = "finished"
	PhaseError       Phase = "error"
)

// ProgressEvent is one progress callback from the extraction tool
type ProgressEvent struct {
	Phase           Phase
	DownloadedBytes int64
	TotalBytes      *int64 // exact total, or the tool's estimate
	Speed           *float64
	ETASeconds      *int64
	Filename        string
}

// ProgressHook receives progress events from the extraction tool.
// It must never block the tool for long and never panics back into it.
type ProgressHook func(ProgressEvent)

// ProgressSink is the presentation side of progress reporting.
// Implementations may fail (closed connection, dead terminal); callers swallow those errors.
type ProgressSink interface {
	// OnProgress sets the indicator to fraction in [0,1] and shows status
	OnProgress(fraction float64, status string) error

	// OnStatus shows status without touching the indicator
	OnStatus(status string) error

	// OnFinished sets the indicator to 1.0 and shows status
	OnFinished(status string) error

	// OnError shows an error message
	OnError(message string) error
}

// StateObserver is implemented by sinks that also track attempt state
type StateObserver interface {
	OnState(state AttemptState)
}

// StartObserver is implemented by sinks that want the attempt id before any progress
type StartObserver interface {
	OnStarted(attemptID string)
}
