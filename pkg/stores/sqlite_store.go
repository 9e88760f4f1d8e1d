package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wareform/wareform/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPath is the conventional ledger location, next to the state file.
const DefaultPath = "state/ledger.db"

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Ledger interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	path   string
	dsn    string
	logger zerolog.Logger
}

// Config holds SQLite store configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
	Logger      *zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &SQLiteStore{
		path:   cfg.Path,
		logger: logger.With().Str("component", "ledger").Str("path", cfg.Path).Logger(),
	}
	s.dsn = s.buildDSN(cfg.BusyTimeout)
	return s, nil
}

// Open creates, initializes and migrates a store in one step.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) buildDSN(busy time.Duration) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=synchronous(NORMAL)",
	}
	if s.path != MemoryPath {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return s.path + "?" + strings.Join(pragmas, "&")
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer; this also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		s.logger.Debug().Uint("version", version).Bool("dirty", dirty).Msg("Ledger schema ready")
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// StartRun inserts a run in the running state. An empty ID or StartedAt is
// filled in.
func (s *SQLiteStore) StartRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunStatusRunning

	query := `
		INSERT INTO runs (id, account, state_path, status, action_count, state_hash_before, rendered_sql, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Account,
		run.StatePath,
		run.Status,
		run.ActionCount,
		run.StateHashBefore,
		run.SQL,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Debug().Str("run_id", run.ID).Int("actions", run.ActionCount).Msg("Run started")
	return nil
}

// CompleteRun marks a run completed with the state hash written by it.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id, stateHashAfter string) error {
	return s.finishRun(ctx, id, RunStatusCompleted, &stateHashAfter, nil)
}

// FailRun marks a run failed.
func (s *SQLiteStore) FailRun(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.finishRun(ctx, id, RunStatusFailed, nil, &msg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, id string, status RunStatus, hash, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, state_hash_after = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = 'running'
	`

	result, err := s.db.ExecContext(ctx, query, status, hash, errMsg, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetRun(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("run %s is already finished", id)
	}

	s.logger.Debug().Str("run_id", id).Str("status", string(status)).Msg("Run finished")
	return nil
}

const runColumns = `id, account, state_path, status, action_count, state_hash_before,
	state_hash_after, rendered_sql, error, started_at, completed_at`

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, most recent first. A non-positive limit returns all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + runColumns + `
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// RecordActions stores the applied plan for a run in one transaction.
// statements, when non-nil, holds the rendered statement for each action.
func (s *SQLiteStore) RecordActions(ctx context.Context, runID string, plan []engine.PlanAction, statements []string) error {
	if statements != nil && len(statements) != len(plan) {
		return fmt.Errorf("got %d statements for %d actions", len(statements), len(plan))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_actions (run_id, seq, action, resource_type, resource_name, details, statement)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare action insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range plan {
		details := []byte("{}")
		if a.Details != nil {
			details, err = json.Marshal(a.Details)
			if err != nil {
				return fmt.Errorf("failed to encode details for %s: %w", a.ID(), err)
			}
		}
		var statement string
		if statements != nil {
			statement = statements[i]
		}
		if _, err := stmt.ExecContext(ctx, runID, i, string(a.Action), string(a.Kind), a.Key, string(details), statement); err != nil {
			return fmt.Errorf("failed to record action %s: %w", a.ID(), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET action_count = ? WHERE id = ?`, len(plan), runID); err != nil {
		return fmt.Errorf("failed to update action count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit actions: %w", err)
	}
	return nil
}

// ListActions returns the actions of a run in plan order.
func (s *SQLiteStore) ListActions(ctx context.Context, runID string) ([]*ActionRecord, error) {
	query := `
		SELECT run_id, seq, action, resource_type, resource_name, details, statement
		FROM run_actions
		WHERE run_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	records := []*ActionRecord{}
	for rows.Next() {
		r := &ActionRecord{}
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Action, &r.ResourceType, &r.ResourceName, &r.Details, &r.Statement); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return records, nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit (run_id, action, actor, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.RunID,
		entry.Action,
		entry.Actor,
		entry.Details,
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

// ListAuditEntries lists audit entries, newest first, optionally for one run.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, runID *string, limit, offset int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, run_id, action, actor, details, timestamp
		FROM audit
		WHERE (? IS NULL OR run_id = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		var (
			entry = &AuditEntry{}
			ts    string
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Action, &entry.Actor, &entry.Details, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       = &Run{}
		status    string
		startedAt string
		completed sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Account,
		&run.StatePath,
		&status,
		&run.ActionCount,
		&run.StateHashBefore,
		&run.StateHashAfter,
		&run.SQL,
		&run.Error,
		&startedAt,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
