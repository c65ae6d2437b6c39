// Package ledger keeps a local history of bootstrap runs: which platform was
// resolved, which runtime version was selected, and every fetch, install and
// cleanup step taken for it.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the final state of a run.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
)

// EventKind names a bootstrap step.
type EventKind string

const (
	EventDetect   EventKind = "detect"
	EventProbe    EventKind = "probe"
	EventFetch    EventKind = "fetch"
	EventExtract  EventKind = "extract"
	EventInstall  EventKind = "install"
	EventRemove   EventKind = "remove"
	EventBaseDeps EventKind = "base_deps"
	EventPurge    EventKind = "purge"
)

// Run is one invocation of the bootstrapper.
type Run struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Platform   string    `json:"platform"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	ExitCode   int       `json:"exit_code"`
	Message    string    `json:"message,omitempty"`
}

// NewRun returns a running Run with a fresh ID.
func NewRun(command string, now time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: now.UTC(),
		Outcome:   OutcomeRunning,
	}
}

// Event is one step of a run.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Artifact  string    `json:"artifact,omitempty"`
	Source    string    `json:"source,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
