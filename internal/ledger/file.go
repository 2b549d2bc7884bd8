package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 25 * time.Millisecond

// FileBackend keeps the ledger as JSON Lines, one entry per line. Every
// mutation rewrites a temp sibling and renames it over the original while
// holding an exclusive lock on <path>.lock, so readers in this or another
// process see either the old file or the new one, never a torn record.
type FileBackend struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex // flock is per-process, this serializes goroutines
	corrupt error
}

// OpenFile prepares a file ledger at path. The file itself is created on
// first append.
func OpenFile(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir: %w", err)
	}
	b := &FileBackend{path: path, lock: flock.New(path + ".lock")}
	// surface an unreadable ledger at startup rather than at first write
	if _, err := b.Entries(context.Background()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) Append(ctx context.Context, e Entry) error {
	return b.mutate(ctx, func(entries []Entry) ([]Entry, error) {
		for _, existing := range entries {
			if existing.ContributionID == e.ContributionID {
				return nil, fmt.Errorf("%s: %w", e.ContributionID, ErrDuplicateEntry)
			}
		}
		return append(entries, e), nil
	})
}

func (b *FileBackend) MarkPaid(ctx context.Context, contributionID string) error {
	return b.mutate(ctx, func(entries []Entry) ([]Entry, error) {
		for i := range entries {
			if entries[i].ContributionID != contributionID {
				continue
			}
			if entries[i].Status == StatusPaid {
				return nil, fmt.Errorf("%s: %w", contributionID, ErrAlreadyPaid)
			}
			entries[i].Status = StatusPaid
			return entries, nil
		}
		return nil, fmt.Errorf("%s: %w", contributionID, ErrNotFound)
	})
}

func (b *FileBackend) Entries(ctx context.Context) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok, err := b.lock.TryRLockContext(ctx, lockRetryDelay); !ok {
		return nil, fmt.Errorf("ledger: shared lock: %w", lockErr(err))
	}
	defer b.lock.Unlock()

	return b.readLocked()
}

func (b *FileBackend) Close() error {
	return b.lock.Close()
}

func (b *FileBackend) mutate(ctx context.Context, fn func([]Entry) ([]Entry, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.corrupt != nil {
		return b.corrupt
	}
	if ok, err := b.lock.TryLockContext(ctx, lockRetryDelay); !ok {
		return fmt.Errorf("ledger: exclusive lock: %w", lockErr(err))
	}
	defer b.lock.Unlock()

	entries, err := b.readLocked()
	if err != nil {
		return err
	}
	next, err := fn(entries)
	if err != nil {
		return err
	}
	return b.writeLocked(next)
}

func (b *FileBackend) readLocked() ([]Entry, error) {
	if b.corrupt != nil {
		return nil, b.corrupt
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: read %s: %w", b.path, err)
	}

	var out []Entry
	seen := make(map[string]int)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, b.markCorrupt(fmt.Errorf("line %d: %v", line, err))
		}
		if err := e.Validate(); err != nil {
			return nil, b.markCorrupt(fmt.Errorf("line %d: %v", line, err))
		}
		if prev, dup := seen[e.ContributionID]; dup {
			return nil, b.markCorrupt(fmt.Errorf("line %d: %s already recorded on line %d", line, e.ContributionID, prev))
		}
		seen[e.ContributionID] = line
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, b.markCorrupt(err)
	}
	return out, nil
}

func (b *FileBackend) writeLocked(entries []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("ledger: encode %s: %w", e.ContributionID, err)
		}
	}

	tmp := b.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("ledger: rename: %w", err)
	}
	return syncDir(filepath.Dir(b.path))
}

func (b *FileBackend) markCorrupt(cause error) error {
	b.corrupt = fmt.Errorf("%w: %s: %v", ErrCorruptLedger, b.path, cause)
	return b.corrupt
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// not every filesystem supports fsync on a directory
	_ = d.Sync()
	return nil
}

func lockErr(err error) error {
	if err == nil {
		return errors.New("lock not acquired")
	}
	return err
}
