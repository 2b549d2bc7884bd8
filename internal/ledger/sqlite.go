package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/jask/bountyledger/internal/database"
)

// SQLiteBackend stores entries in the ledger_entries table. The schema
// carries the same invariants as the file format (unique contribution,
// positive amount, forward-only status) so a hand edit cannot break them.
type SQLiteBackend struct {
	db *sql.DB

	mu      sync.Mutex
	corrupt error
}

// OpenSQLite migrates and opens the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(path); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := database.QuickCheck(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, path, err)
	}
	return &SQLiteBackend{db: db}, nil
}

// entryRowID derives a stable row id so the same contribution always maps
// to the same primary key.
func entryRowID(contributionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger:"+contributionID)).String()
}

func (b *SQLiteBackend) Append(ctx context.Context, e Entry) error {
	if err := b.writable(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO ledger_entries(id, contribution_id, author, feature, amount, merged_at, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, entryRowID(e.ContributionID), e.ContributionID, e.Author, e.Feature, e.Amount,
		e.MergedAt.UTC().Format(time.RFC3339Nano), string(e.Status))
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", e.ContributionID, ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("ledger: append %s: %w", e.ContributionID, err)
	}
	return nil
}

func (b *SQLiteBackend) MarkPaid(ctx context.Context, contributionID string) error {
	if err := b.writable(); err != nil {
		return err
	}
	return database.WithTx(ctx, b.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM ledger_entries WHERE contribution_id = ?`, contributionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", contributionID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("ledger: mark paid %s: %w", contributionID, err)
		}
		if Status(status) == StatusPaid {
			return fmt.Errorf("%s: %w", contributionID, ErrAlreadyPaid)
		}
		res, err := tx.ExecContext(ctx, `UPDATE ledger_entries SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE contribution_id = ? AND status = ?`,
			string(StatusPaid), contributionID, string(StatusPending))
		if err != nil {
			return fmt.Errorf("ledger: mark paid %s: %w", contributionID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("%s: %w", contributionID, ErrAlreadyPaid)
		}
		return nil
	})
}

func (b *SQLiteBackend) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
	SELECT contribution_id, author, feature, amount, merged_at, status
	FROM ledger_entries
	ORDER BY merged_at ASC, contribution_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var mergedAt, status string
		if err := rows.Scan(&e.ContributionID, &e.Author, &e.Feature, &e.Amount, &mergedAt, &status); err != nil {
			return nil, b.markCorrupt(err)
		}
		e.Status = Status(status)
		if e.MergedAt, err = time.Parse(time.RFC3339Nano, mergedAt); err != nil {
			return nil, b.markCorrupt(fmt.Errorf("%s: merged_at: %v", e.ContributionID, err))
		}
		if err := e.Validate(); err != nil {
			return nil, b.markCorrupt(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func (b *SQLiteBackend) writable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.corrupt
}

func (b *SQLiteBackend) markCorrupt(cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corrupt = fmt.Errorf("%w: %v", ErrCorruptLedger, cause)
	return b.corrupt
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
