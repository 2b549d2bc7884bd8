// Package report derives totals from a ledger snapshot. It never touches
// the store; callers pass the entries in.
package report

import (
	"errors"
	"sort"
	"time"

	"github.com/jask/bountyledger/internal/ledger"
)

var ErrInvalidMultiplier = errors.New("report: bonus multiplier must be positive")

// AuthorTotals is one author's share.
type AuthorTotals struct {
	Author        string `json:"author"`
	Owed          int64  `json:"owed"`
	Paid          int64  `json:"paid"`
	ProjectedOwed int64  `json:"projected_owed"`
	PendingCount  int    `json:"pending_count"`
	PaidCount     int    `json:"paid_count"`
}

// Report is the aggregate view. Amounts are in the ledger's unit.
type Report struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	BonusMultiplier int64          `json:"bonus_multiplier"`
	Owed            int64          `json:"owed"`
	Paid            int64          `json:"paid"`
	ProjectedOwed   int64          `json:"projected_owed"`
	PendingCount    int            `json:"pending_count"`
	PaidCount       int            `json:"paid_count"`
	OldestPending   *time.Time     `json:"oldest_pending,omitempty"`
	Authors         []AuthorTotals `json:"authors"`
}

// Generate totals entries. Projected owed is owed times multiplier; stored
// amounts are never scaled. Authors are sorted by projected owed, largest
// first, then by name.
func Generate(entries []ledger.Entry, multiplier int64, now time.Time) (Report, error) {
	if multiplier <= 0 {
		return Report{}, ErrInvalidMultiplier
	}
	r := Report{GeneratedAt: now.UTC(), BonusMultiplier: multiplier, Authors: []AuthorTotals{}}
	byAuthor := map[string]*AuthorTotals{}

	for _, e := range entries {
		a, ok := byAuthor[e.Author]
		if !ok {
			a = &AuthorTotals{Author: e.Author}
			byAuthor[e.Author] = a
		}
		switch e.Status {
		case ledger.StatusPending:
			r.Owed += e.Amount
			r.PendingCount++
			a.Owed += e.Amount
			a.PendingCount++
			if r.OldestPending == nil || e.MergedAt.Before(*r.OldestPending) {
				t := e.MergedAt.UTC()
				r.OldestPending = &t
			}
		case ledger.StatusPaid:
			r.Paid += e.Amount
			r.PaidCount++
			a.Paid += e.Amount
			a.PaidCount++
		}
	}
	r.ProjectedOwed = r.Owed * multiplier

	for _, a := range byAuthor {
		a.ProjectedOwed = a.Owed * multiplier
		r.Authors = append(r.Authors, *a)
	}
	sort.Slice(r.Authors, func(i, j int) bool {
		if r.Authors[i].ProjectedOwed != r.Authors[j].ProjectedOwed {
			return r.Authors[i].ProjectedOwed > r.Authors[j].ProjectedOwed
		}
		return r.Authors[i].Author < r.Authors[j].Author
	})
	return r, nil
}
