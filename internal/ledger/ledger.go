package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Backend persists entries. Implementations must make Append and MarkPaid
// atomic and durable before returning, and serialize them per identifier.
type Backend interface {
	Append(ctx context.Context, e Entry) error
	MarkPaid(ctx context.Context, contributionID string) error
	Entries(ctx context.Context) ([]Entry, error)
	Close() error
}

// Ledger is the store used by the rest of the program.
type Ledger struct {
	backend Backend
}

func New(b Backend) *Ledger { return &Ledger{backend: b} }

// Append records a new PENDING entry. The status of e is ignored.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	e.ContributionID = strings.TrimSpace(e.ContributionID)
	e.Status = StatusPending
	e.MergedAt = e.MergedAt.UTC()
	if err := e.Validate(); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return l.backend.Append(ctx, e)
}

// MarkPaid moves an entry from PENDING to PAID.
func (l *Ledger) MarkPaid(ctx context.Context, contributionID string) error {
	return l.backend.MarkPaid(ctx, strings.TrimSpace(contributionID))
}

// Get returns the entry for one contribution.
func (l *Ledger) Get(ctx context.Context, contributionID string) (Entry, error) {
	entries, err := l.backend.Entries(ctx)
	if err != nil {
		return Entry{}, err
	}
	contributionID = strings.TrimSpace(contributionID)
	for _, e := range entries {
		if e.ContributionID == contributionID {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: %w", contributionID, ErrNotFound)
}

// List returns every entry, ordered by merge timestamp.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	entries, err := l.backend.Entries(ctx)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// ListOwed returns PENDING entries ordered by merge timestamp.
func (l *Ledger) ListOwed(ctx context.Context) ([]Entry, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return filterStatus(entries, StatusPending), nil
}

// ListPaid returns PAID entries ordered by merge timestamp.
func (l *Ledger) ListPaid(ctx context.Context) ([]Entry, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return filterStatus(entries, StatusPaid), nil
}

// TotalOwed sums PENDING amounts scaled by multiplier. Stored amounts are
// not touched.
func (l *Ledger) TotalOwed(ctx context.Context, multiplier int64) (int64, error) {
	if multiplier <= 0 {
		return 0, fmt.Errorf("ledger: multiplier %d is not positive", multiplier)
	}
	owed, err := l.ListOwed(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range owed {
		total += e.Amount
	}
	return total * multiplier, nil
}

func (l *Ledger) Close() error { return l.backend.Close() }
