package stores

import (
	"context"
	"errors"
	"time"

	"github.com/wareform/wareform/pkg/engine"
)

// ErrRunNotFound is returned when a run ID does not exist in the ledger.
var ErrRunNotFound = errors.New("run not found")

// RunStatus represents the status of an apply run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one invocation of apply.
type Run struct {
	ID              string     `json:"id"`
	Account         string     `json:"account"`
	StatePath       string     `json:"state_path"`
	Status          RunStatus  `json:"status"`
	ActionCount     int        `json:"action_count"`
	StateHashBefore string     `json:"state_hash_before"`
	StateHashAfter  *string    `json:"state_hash_after,omitempty"`
	SQL             string     `json:"sql"`
	Error           *string    `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ActionRecord is a single plan action applied as part of a run.
type ActionRecord struct {
	RunID        string `json:"run_id"`
	Seq          int    `json:"seq"`
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	Details      string `json:"details"` // JSON blob
	Statement    string `json:"statement"`
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	RunID     *string   `json:"run_id,omitempty"`
	Action    string    `json:"action"` // e.g. "run.started", "state.written", "policy.skipped"
	Actor     string    `json:"actor"`
	Details   *string   `json:"details,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Ledger records apply history.
type Ledger interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Runs
	StartRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id, stateHashAfter string) error
	FailRun(ctx context.Context, id string, cause error) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Actions
	RecordActions(ctx context.Context, runID string, plan []engine.PlanAction, statements []string) error
	ListActions(ctx context.Context, runID string) ([]*ActionRecord, error)

	// Audit
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, runID *string, limit, offset int) ([]*AuditEntry, error)
}
