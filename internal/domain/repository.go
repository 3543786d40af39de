package domain

import "errors"

// ErrAttemptNotFound is returned when no attempt has the requested ID
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository defines the interface for attempt history persistence
type AttemptRepository interface {
	// Create creates a new attempt record
	Create(attempt *Attempt) error

	// Update updates an existing attempt record
	Update(attempt *Attempt) error

	// FindByID finds an attempt by ID; returns ErrAttemptNotFound when missing
	FindByID(id string) (*Attempt, error)

	// FindRecent returns the latest attempts, newest first
	FindRecent(limit int) ([]*Attempt, error)

	// FindByState finds attempts in the given state
	FindByState(state AttemptState) ([]*Attempt, error)

	// GetStats returns attempt statistics
	GetStats() (*AttemptStats, error)
}

// AttemptStats represents attempt statistics
type AttemptStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
