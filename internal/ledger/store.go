package ledger

import (
	"context"
	"time"
)

// Store defines the persistence interface for run history.
// The primary implementation uses SQLite (see sqlite.go).
type Store interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, outcome Outcome, exitCode int, message string, at time.Time) error
	UpdateRunTarget(ctx context.Context, id, platform, version string) error
	RecordEvent(ctx context.Context, ev *Event) error

	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	Events(ctx context.Context, runID string) ([]Event, error)
	// LastInstall returns the newest install event, or nil.
	LastInstall(ctx context.Context) (*Event, error)

	Close() error
}

// Discard is a Store that keeps nothing.
type Discard struct{}

func (Discard) StartRun(context.Context, *Run) error { return nil }
func (Discard) FinishRun(context.Context, string, Outcome, int, string, time.Time) error {
	return nil
}
func (Discard) UpdateRunTarget(context.Context, string, string, string) error { return nil }
func (Discard) RecordEvent(context.Context, *Event) error                     { return nil }
func (Discard) ListRuns(context.Context, int) ([]Run, error)                   { return nil, nil }
func (Discard) GetRun(context.Context, string) (*Run, error)                   { return nil, nil }
func (Discard) Events(context.Context, string) ([]Event, error)                { return nil, nil }
func (Discard) LastInstall(context.Context) (*Event, error)                    { return nil, nil }
func (Discard) Close() error                                                   { return nil }
