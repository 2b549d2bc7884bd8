// Package ledger is the durable record of bounty money owed and paid per
// merged contribution. Entries are never deleted; the only mutation is the
// one-way PENDING to PAID status transition.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the payment state of an entry.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

var (
	ErrDuplicateEntry = errors.New("ledger: duplicate entry")
	ErrNotFound       = errors.New("ledger: entry not found")
	ErrAlreadyPaid    = errors.New("ledger: entry already paid")
	// ErrCorruptLedger means stored data violates the ledger's structural
	// invariants. The backend refuses further writes until repaired by hand.
	ErrCorruptLedger = errors.New("ledger: corrupt ledger")
)

// Entry is one line of the ledger file.
type Entry struct {
	ContributionID string    `json:"identifier"`
	Author         string    `json:"author"`
	Feature        string    `json:"feature"`
	Amount         int64     `json:"amount"`
	MergedAt       time.Time `json:"merge_date"`
	Status         Status    `json:"status"`
}

// Validate checks the invariants every stored entry must satisfy.
func (e Entry) Validate() error {
	switch {
	case strings.TrimSpace(e.ContributionID) == "":
		return fmt.Errorf("identifier is empty")
	case e.Amount <= 0:
		return fmt.Errorf("%s: amount %d is not positive", e.ContributionID, e.Amount)
	case e.MergedAt.IsZero():
		return fmt.Errorf("%s: merge date missing", e.ContributionID)
	case !e.Status.Valid():
		return fmt.Errorf("%s: unknown status %q", e.ContributionID, e.Status)
	}
	return nil
}

// sortEntries orders by merge timestamp ascending, identifier breaking ties.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.MergedAt.Equal(b.MergedAt) {
			return a.MergedAt.Before(b.MergedAt)
		}
		return a.ContributionID < b.ContributionID
	})
}

func filterStatus(entries []Entry, s Status) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}
