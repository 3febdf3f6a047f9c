// Package ledger keeps a local history of task monitoring sessions in a
// SQLite database, so the CLI can show what earlier waits ended with.
//
// One Record call writes one session row and one row per handle inside a
// single transaction. History reads rows back newest first.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNilResult is returned when Record is given no result.
var ErrNilResult = errors.New("ledger: no monitor result to record")

const defaultHistoryLimit = 50

// Entry is one recorded handle status.
type Entry struct {
	SessionID   string            `json:"session_id"             yaml:"session_id"`
	Handle      string            `json:"handle"                 yaml:"handle"`
	State       polaris.TaskState `json:"state"                  yaml:"state"`
	ServerState string            `json:"server_state,omitempty" yaml:"server_state,omitempty"`
	Error       string            `json:"error,omitempty"        yaml:"error,omitempty"`
	Polls       int               `json:"polls"                  yaml:"polls"`
	Aggregate   polaris.TaskState `json:"aggregate"              yaml:"aggregate"`
	RecordedAt  time.Time         `json:"recorded_at"            yaml:"recorded_at"`
}

// Filter narrows History. Zero values match everything.
type Filter struct {
	Handle    string
	SessionID string
	Limit     int
}

// Ledger stores monitoring outcomes.
type Ledger struct {
	db      *sql.DB
	logger  polaris.Logger
	nowFunc func() time.Time
}

// Open opens or creates the database at path and applies pending
// migrations. The parent directory is created when missing.
func Open(ctx context.Context, path string, logger polaris.Logger) (*Ledger, error) {
	if logger == nil {
		logger = polaris.NopLogger{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ledger: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return &Ledger{db: db, logger: logger, nowFunc: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger polaris.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("ledger: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("ledger: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("Applied ledger migration", map[string]interface{}{
			"source":      r.Source.Path,
			"duration_ms": r.Duration.Milliseconds(),
		})
	}

	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores one monitoring session and returns its id.
func (l *Ledger) Record(ctx context.Context, result *polaris.MonitorResult) (string, error) {
	if result == nil {
		return "", ErrNilResult
	}

	sessionID := uuid.NewString()
	now := l.nowFunc().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: begin record: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var firstFailure sql.NullString
	if result.FirstFailure != nil {
		firstFailure = sql.NullString{String: string(result.FirstFailure.Handle), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO task_sessions (id, aggregate, handles, first_failure, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(result.Aggregate), len(result.Statuses), firstFailure, now.UnixNano(),
	); err != nil {
		return "", fmt.Errorf("ledger: insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO task_history
			(session_id, handle, state, server_state, error, polls, updated_at, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("ledger: prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sortedStatuses(result) {
		if _, err := stmt.ExecContext(ctx,
			sessionID, string(s.Handle), string(s.State), nullString(s.ServerState), nullString(s.Error),
			s.Polls, nullTime(s.UpdatedAt), now.UnixNano(),
		); err != nil {
			return "", fmt.Errorf("ledger: insert status of %s: %w", s.Handle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("ledger: commit record: %w", err)
	}

	l.logger.Debug("Recorded task session", map[string]interface{}{
		"session":   sessionID,
		"handles":   len(result.Statuses),
		"aggregate": string(result.Aggregate),
	})

	return sessionID, nil
}

// History returns recorded entries, newest first.
func (l *Ledger) History(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `SELECT h.session_id, h.handle, h.state, h.server_state, h.error, h.polls, s.aggregate, h.recorded_at
		FROM task_history h JOIN task_sessions s ON s.id = h.session_id
		WHERE (? = '' OR h.handle = ?) AND (? = '' OR h.session_id = ?)
		ORDER BY h.recorded_at DESC, h.id ASC
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, f.Handle, f.Handle, f.SessionID, f.SessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)

	for rows.Next() {
		var (
			e                   Entry
			state, aggregate    string
			serverState, detail sql.NullString
			recorded            int64
		)

		if err := rows.Scan(&e.SessionID, &e.Handle, &state, &serverState, &detail, &e.Polls, &aggregate, &recorded); err != nil {
			return nil, fmt.Errorf("ledger: scan history row: %w", err)
		}

		e.State = polaris.TaskState(state)
		e.Aggregate = polaris.TaskState(aggregate)
		e.ServerState = serverState.String
		e.Error = detail.String
		e.RecordedAt = time.Unix(0, recorded).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate history: %w", err)
	}

	return entries, nil
}

// Prune deletes sessions recorded before cutoff and returns how many went.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM task_sessions WHERE recorded_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: prune rows affected: %w", err)
	}

	return n, nil
}

// sortedStatuses returns statuses in handle order so rows are stable.
func sortedStatuses(result *polaris.MonitorResult) []polaris.TaskStatus {
	out := make([]polaris.TaskStatus, 0, len(result.Statuses))
	for h, s := range result.Statuses {
		if s.Handle == "" {
			s.Handle = h
		}

		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b polaris.TaskStatus) int {
		return strings.Compare(string(a.Handle), string(b.Handle))
	})

	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
