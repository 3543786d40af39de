package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

const (
	// CompletedStatus is shown when the tool exits cleanly
	CompletedStatus = "Download and post-processing completed!"

	// EmptyURLMessage is shown when an attempt is rejected for a missing URL
	EmptyURLMessage = "Please provide a URL."
)

// Outcome is the terminal result of one attempt
type Outcome struct {
	AttemptID string              `json:"attempt_id"`
	State     domain.AttemptState `json:"state"`
	Err       error               `json:"-"`
	Files     []domain.FileEntry  `json:"files,omitempty"`
}

// Succeeded reports whether the attempt completed
func (o *Outcome) Succeeded() bool {
	return o.State == domain.StateCompleted
}

// DownloadManager runs single download attempts against the extraction tool.
// Collaborators other than the extractor are optional.
type DownloadManager struct {
	extractor   domain.Extractor
	repo        domain.AttemptRepository
	lister      domain.FileLister
	notifier    domain.Notifier
	recorder    domain.AttemptRecorder
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
}

// NewDownloadManager creates a new download manager
func NewDownloadManager(
	extractor domain.Extractor,
	repo domain.AttemptRepository,
	lister domain.FileLister,
	notifier domain.Notifier,
	recorder domain.AttemptRecorder,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *DownloadManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &DownloadManager{
		extractor:   extractor,
		repo:        repo,
		lister:      lister,
		notifier:    notifier,
		recorder:    recorder,
		logger:      log,
		multiLogger: multiLogger,
	}
}

// Attempt runs one download for req, reporting progress to sink, and blocks until it ends
func (dm *DownloadManager) Attempt(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) *Outcome {
	return dm.AttemptWithID(ctx, "", req, sink)
}

// AttemptWithID is Attempt with a caller-chosen attempt ID; an empty id gets a fresh one
func (dm *DownloadManager) AttemptWithID(ctx context.Context, id string, req domain.DownloadRequest, sink domain.ProgressSink) *Outcome {
	if sink == nil {
		sink = NopSink{}
	}

	attempt := domain.NewAttempt(req)
	if id != "" {
		attempt.ID = id
	}
	outcome := &Outcome{AttemptID: attempt.ID}

	if err := req.Validate(); err != nil {
		attempt.MarkRejected(err)
		dm.createRecord(attempt)
		dm.logEvent("attempt_rejected", attempt, zap.Error(err))
		if dm.recorder != nil {
			dm.recorder.AttemptFinished(req.Mode, domain.StateRejected, 0)
		}
		notifyState(sink, domain.StateRejected)
		deliver(dm.logger, "error", func() error { return sink.OnError(EmptyURLMessage) })

		outcome.State = domain.StateRejected
		outcome.Err = err
		return outcome
	}

	start := time.Now()
	dm.createRecord(attempt)
	dm.logEvent("attempt_started", attempt,
		zap.String("quality_or_codec", req.QualityOrCodec),
		zap.String("folder", req.DestinationFolder))
	if dm.recorder != nil {
		dm.recorder.AttemptStarted(req.Mode)
	}
	if dm.notifier != nil {
		dm.notifier.NotifyAttemptStarted(req.URL, req.Mode)
	}

	reached, err := dm.run(ctx, req, sink)

	if err != nil {
		attempt.MarkFailed(err)
		notifyState(sink, domain.StateFailed)
		deliver(dm.logger, "error", func() error { return sink.OnError(err.Error()) })

		dm.logger.Error("Attempt failed",
			zap.String("id", attempt.ID),
			zap.String("url", req.URL),
			zap.String("failed_during", string(reached)),
			zap.Error(err))
		if dm.multiLogger != nil {
			dm.multiLogger.LogAppError("Attempt failed",
				zap.String("id", attempt.ID),
				zap.String("url", req.URL),
				zap.String("failed_during", string(reached)),
				zap.Error(err))
		}
		if dm.notifier != nil {
			dm.notifier.NotifyAttemptFailed(req.URL, req.Mode, err)
		}

		outcome.State = domain.StateFailed
		outcome.Err = err
	} else {
		attempt.MarkCompleted()
		notifyState(sink, domain.StateCompleted)
		deliver(dm.logger, "finished", func() error { return sink.OnFinished(CompletedStatus) })

		dm.logger.Info("Attempt completed",
			zap.String("id", attempt.ID),
			zap.String("url", req.URL))
		if dm.notifier != nil {
			dm.notifier.NotifyAttemptCompleted(req.URL, req.Mode)
		}

		outcome.State = domain.StateCompleted
	}

	if dm.recorder != nil {
		dm.recorder.AttemptFinished(req.Mode, outcome.State, time.Since(start).Seconds())
	}
	dm.updateRecord(attempt)
	dm.logEvent("attempt_"+string(outcome.State), attempt,
		zap.Duration("elapsed", time.Since(start)),
		zap.NamedError("reason", outcome.Err))

	outcome.Files = dm.listFiles(req.DestinationFolder)
	return outcome
}

// run prepares the folder and invokes the tool once; there is no retry.
// It returns the last state the tool's output moved the attempt to.
func (dm *DownloadManager) run(ctx context.Context, req domain.DownloadRequest, sink domain.ProgressSink) (domain.AttemptState, error) {
	if err := os.MkdirAll(req.DestinationFolder, 0755); err != nil {
		return domain.StateIdle, fmt.Errorf("failed to create destination folder: %w", err)
	}

	opts := domain.MapOptions(req)
	tracker := newStateTracker(sink)
	hook := NewProgressHook(tracker, dm.logger)

	dm.logger.Debug("Invoking extractor",
		zap.String("tool", dm.extractor.Name()),
		zap.String("url", req.URL),
		zap.String("format", string(opts.Format)),
		zap.String("output", opts.OutputTemplate))

	err := dm.extractor.Extract(ctx, req.URL, opts, hook)
	return tracker.State(), err
}

func (dm *DownloadManager) listFiles(dir string) []domain.FileEntry {
	if dm.lister == nil {
		return nil
	}
	files, err := dm.lister.List(dir)
	if err != nil {
		dm.logger.Warn("Failed to list destination folder",
			zap.String("folder", dir),
			zap.Error(err))
		return nil
	}
	return files
}

// createRecord and updateRecord are best effort; history never fails an attempt
func (dm *DownloadManager) createRecord(attempt *domain.Attempt) {
	if dm.repo == nil {
		return
	}
	if err := dm.repo.Create(attempt); err != nil {
		dm.logger.Error("Failed to record attempt", zap.String("id", attempt.ID), zap.Error(err))
	}
}

func (dm *DownloadManager) updateRecord(attempt *domain.Attempt) {
	if dm.repo == nil {
		return
	}
	if err := dm.repo.Update(attempt); err != nil {
		dm.logger.Error("Failed to update attempt", zap.String("id", attempt.ID), zap.Error(err))
	}
}

func (dm *DownloadManager) logEvent(event string, attempt *domain.Attempt, fields ...zap.Field) {
	if dm.multiLogger == nil {
		return
	}
	fields = append([]zap.Field{
		zap.String("id", attempt.ID),
		zap.String("url", attempt.URL),
		zap.String("mode", string(attempt.Mode)),
	}, fields...)
	dm.multiLogger.LogAttemptEvent(event, fields...)
}

func notifyState(sink domain.ProgressSink, state domain.AttemptState) {
	if observer, ok := sink.(domain.StateObserver); ok {
		observer.OnState(state)
	}
}

// stateTracker moves the attempt to downloading on the first tool event
// and to post_processing once the tool reports the download finished.
type stateTracker struct {
	domain.ProgressSink
	mu    sync.Mutex
	state domain.AttemptState
}

func newStateTracker(sink domain.ProgressSink) *stateTracker {
	return &stateTracker{ProgressSink: sink, state: domain.StateIdle}
}

func (t *stateTracker) advance(state domain.AttemptState) {
	t.mu.Lock()
	changed := t.state != state
	t.state = state
	t.mu.Unlock()

	if changed {
		notifyState(t.ProgressSink, state)
	}
}

func (t *stateTracker) OnProgress(fraction float64, status string) error {
	t.advance(domain.StateDownloading)
	return t.ProgressSink.OnProgress(fraction, status)
}

func (t *stateTracker) OnStatus(status string) error {
	t.advance(domain.StateDownloading)
	return t.ProgressSink.OnStatus(status)
}

// OnFinished fires once per downloaded stream; a second stream moves
// the tracker back to downloading through OnProgress.
func (t *stateTracker) OnFinished(status string) error {
	t.advance(domain.StatePostProcessing)
	return t.ProgressSink.OnFinished(status)
}

// State returns the last tracked state
func (t *stateTracker) State() domain.AttemptState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
