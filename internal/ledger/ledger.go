// Package ledger persists processed-message fingerprints in SQLite and
// provides the atomic claim/commit/release cycle the capture pipeline needs
// for at-most-once task creation.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"jarvis/internal/capture"
)

// Entry states. A fingerprint moves claimed -> committed; a claimed entry
// that never commits is released (deleted) or reclaimed after StaleAfter.
const (
	stateClaimed   = "claimed"
	stateCommitted = "committed"
)

// Entry is one ledger row.
type Entry struct {
	Fingerprint capture.Fingerprint
	State       string
	TaskID      string
	ClaimedAt   time.Time
	CommittedAt time.Time
}

// Ledger is a SQLite-backed fingerprint store. Safe for concurrent use;
// claim atomicity is enforced by the database, not by a process-local lock.
type Ledger struct {
	db         *sql.DB
	path       string
	staleAfter time.Duration
}

// DefaultStaleAfter bounds how long an uncommitted reservation blocks
// retries after a crash between claim and commit.
const DefaultStaleAfter = 15 * time.Minute

// Open creates or opens the ledger database at path. staleAfter <= 0 falls
// back to DefaultStaleAfter.
func Open(path string, staleAfter time.Duration) (*Ledger, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	l := &Ledger{db: db, path: path, staleAfter: staleAfter}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		task_gid TEXT,
		claimed_at DATETIME NOT NULL,
		committed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_fingerprints_state ON fingerprints(state);
	`
	_, err := l.db.Exec(schema)
	return err
}

// TryClaim atomically reserves a fingerprint. It returns true when the
// caller won the reservation, false when the fingerprint is already claimed
// or committed. A claimed-but-uncommitted row older than the staleness
// window counts as abandoned and is re-claimable.
func (l *Ledger) TryClaim(ctx context.Context, fp capture.Fingerprint) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-l.staleAfter)

	// Single statement so concurrent claimers race inside SQLite, not in
	// Go: the upsert only fires for stale uncommitted rows.
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO fingerprints (fingerprint, state, claimed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			claimed_at = excluded.claimed_at
		WHERE fingerprints.state = ? AND fingerprints.claimed_at < ?
	`, string(fp), stateClaimed, now, stateClaimed, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to claim fingerprint: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected > 0, nil
}

// Commit finalizes a reservation with the created task reference. Calling
// it again with the same arguments is a no-op.
func (l *Ledger) Commit(ctx context.Context, fp capture.Fingerprint, taskID string) error {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		UPDATE fingerprints
		SET state = ?, task_gid = ?, committed_at = ?
		WHERE fingerprint = ? AND (state = ? OR (state = ? AND task_gid = ?))
	`, stateCommitted, taskID, now, string(fp), stateClaimed, stateCommitted, taskID)
	if err != nil {
		return fmt.Errorf("failed to commit fingerprint: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Either the fingerprint was never claimed or it committed with a
		// different task. Both mean the pipeline's invariants broke upstream.
		var state, existing sql.NullString
		err := l.db.QueryRowContext(ctx,
			`SELECT state, task_gid FROM fingerprints WHERE fingerprint = ?`,
			string(fp)).Scan(&state, &existing)
		if err == sql.ErrNoRows {
			return fmt.Errorf("commit without claim for fingerprint %s", fp)
		}
		if err != nil {
			return fmt.Errorf("failed to verify commit: %w", err)
		}
		if state.String == stateCommitted && existing.String == taskID {
			return nil // idempotent replay
		}
		return fmt.Errorf("fingerprint %s already committed to task %s", fp, existing.String)
	}
	return nil
}

// Release removes an uncommitted reservation so the message can be retried.
// Committed entries are never released.
func (l *Ledger) Release(ctx context.Context, fp capture.Fingerprint) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE fingerprint = ? AND state = ?`,
		string(fp), stateClaimed)
	if err != nil {
		return fmt.Errorf("failed to release fingerprint: %w", err)
	}
	return nil
}

// Lookup returns the ledger entry for a fingerprint, or nil when absent.
func (l *Ledger) Lookup(ctx context.Context, fp capture.Fingerprint) (*Entry, error) {
	var e Entry
	var taskGID sql.NullString
	var committedAt sql.NullTime

	err := l.db.QueryRowContext(ctx, `
		SELECT fingerprint, state, task_gid, claimed_at, committed_at
		FROM fingerprints WHERE fingerprint = ?
	`, string(fp)).Scan(&e.Fingerprint, &e.State, &taskGID, &e.ClaimedAt, &committedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	e.TaskID = taskGID.String
	if committedAt.Valid {
		e.CommittedAt = committedAt.Time
	}
	return &e, nil
}

// CommittedCount returns how many fingerprints have committed entries.
func (l *Ledger) CommittedCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fingerprints WHERE state = ?`, stateCommitted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count committed entries: %w", err)
	}
	return n, nil
}
