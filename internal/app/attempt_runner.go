package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// ErrAttemptInProgress is returned when an attempt is started while another one runs
var ErrAttemptInProgress = errors.New("an attempt is already in progress")

// Attempter runs a single attempt to completion
type Attempter interface {
	AttemptWithID(ctx context.Context, id string, req domain.DownloadRequest, sink domain.ProgressSink) *Outcome
}

// Snapshot is the observable state of the current or last attempt
type Snapshot struct {
	AttemptID  string              `json:"attempt_id,omitempty"`
	URL        string              `json:"url,omitempty"`
	Mode       domain.Mode         `json:"mode,omitempty"`
	State      domain.AttemptState `json:"state"`
	Status     string              `json:"status,omitempty"`
	Fraction   float64             `json:"fraction"`
	Error      string              `json:"error,omitempty"`
	Files      []domain.FileEntry  `json:"files,omitempty"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// AttemptRunner runs attempts in the background, one at a time.
// Attempts run under the runner's own context, which is only cancelled by Shutdown.
type AttemptRunner struct {
	attempter   Attempter
	multiLogger *logger.MultiLogger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	running     bool
	current     Snapshot
	wg          sync.WaitGroup
}

// NewAttemptRunner creates a new attempt runner
func NewAttemptRunner(attempter Attempter, multiLogger *logger.MultiLogger) *AttemptRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &AttemptRunner{
		attempter:   attempter,
		multiLogger: multiLogger,
		ctx:         ctx,
		cancel:      cancel,
		current:     Snapshot{State: domain.StateIdle},
	}
}

// Start launches an attempt for req and returns its ID.
// Invalid requests are rejected synchronously: the rejection is recorded and
// returned to the caller, and sink never sees it. A sink implementing
// domain.StartObserver is told the id before the attempt begins.
func (r *AttemptRunner) Start(req domain.DownloadRequest, sink domain.ProgressSink) (string, error) {
	id := uuid.New().String()

	if err := req.Validate(); err != nil {
		outcome := r.attempter.AttemptWithID(r.ctx, id, req, NopSink{})
		return outcome.AttemptID, err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrAttemptInProgress
	}
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return "", r.ctx.Err()
	}
	now := time.Now()
	r.running = true
	r.current = Snapshot{
		AttemptID: id,
		URL:       req.URL,
		Mode:      req.Mode,
		State:     domain.StateIdle,
		StartedAt: &now,
	}
	r.wg.Add(1)
	r.mu.Unlock()

	if r.multiLogger != nil {
		r.multiLogger.LogAttemptEvent("attempt_accepted",
			zap.String("id", id),
			zap.String("url", req.URL),
			zap.String("mode", string(req.Mode)))
	}

	if observer, ok := sink.(domain.StartObserver); ok {
		observer.OnStarted(id)
	}

	go r.run(id, req, sink)
	return id, nil
}

func (r *AttemptRunner) run(id string, req domain.DownloadRequest, sink domain.ProgressSink) {
	defer r.wg.Done()

	if sink == nil {
		sink = NopSink{}
	}
	outcome := r.attempter.AttemptWithID(r.ctx, id, req, &snapshotSink{ProgressSink: sink, runner: r, id: id})

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.running = false
	r.current.State = outcome.State
	r.current.Files = outcome.Files
	r.current.FinishedAt = &now
	if outcome.Err != nil {
		r.current.Error = outcome.Err.Error()
	}
}

// IsRunning returns whether an attempt is in flight
func (r *AttemptRunner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Current returns a copy of the current or last attempt snapshot
func (r *AttemptRunner) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := r.current
	snap.Files = append([]domain.FileEntry(nil), r.current.Files...)
	return snap
}

// Wait blocks until the in-flight attempt, if any, has finished
func (r *AttemptRunner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels the in-flight attempt and waits for it, or for ctx to end
func (r *AttemptRunner) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *AttemptRunner) update(id string, fn func(s *Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.AttemptID == id {
		fn(&r.current)
	}
}

// snapshotSink mirrors sink traffic into the runner snapshot before forwarding it
type snapshotSink struct {
	domain.ProgressSink
	runner *AttemptRunner
	id     string
}

func (s *snapshotSink) OnProgress(fraction float64, status string) error {
	s.runner.update(s.id, func(snap *Snapshot) {
		snap.Fraction = fraction
		snap.Status = status
	})
	return s.ProgressSink.OnProgress(fraction, status)
}

func (s *snapshotSink) OnStatus(status string) error {
	s.runner.update(s.id, func(snap *Snapshot) { snap.Status = status })
	return s.ProgressSink.OnStatus(status)
}

func (s *snapshotSink) OnFinished(status string) error {
	s.runner.update(s.id, func(snap *Snapshot) {
		snap.Fraction = 1.0
		snap.Status = status
	})
	return s.ProgressSink.OnFinished(status)
}

func (s *snapshotSink) OnError(message string) error {
	s.runner.update(s.id, func(snap *Snapshot) { snap.Error = message })
	return s.ProgressSink.OnError(message)
}

func (s *snapshotSink) OnState(state domain.AttemptState) {
	s.runner.update(s.id, func(snap *Snapshot) { snap.State = state })
	notifyState(s.ProgressSink, state)
}
