package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/bountyledger/internal/ledger"
)

var now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func e(id, author string, amount int64, status ledger.Status, day int) ledger.Entry {
	return ledger.Entry{
		ContributionID: id, Author: author, Feature: "f", Amount: amount, Status: status,
		MergedAt: time.Date(2026, 4, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestGenerateTotals(t *testing.T) {
	entries := []ledger.Entry{
		e("1", "ana", 100, ledger.StatusPending, 3),
		e("2", "bo", 50, ledger.StatusPending, 2),
		e("3", "ana", 70, ledger.StatusPaid, 1),
		e("4", "cy", 30, ledger.StatusPaid, 4),
	}
	before := append([]ledger.Entry(nil), entries...)

	r, err := Generate(entries, 2, now)
	require.NoError(t, err)
	require.Equal(t, int64(150), r.Owed)
	require.Equal(t, int64(300), r.ProjectedOwed)
	require.Equal(t, int64(100), r.Paid)
	require.Equal(t, 2, r.PendingCount)
	require.Equal(t, 2, r.PaidCount)
	require.Equal(t, int64(2), r.BonusMultiplier)
	require.Equal(t, now, r.GeneratedAt)
	require.NotNil(t, r.OldestPending)
	require.True(t, r.OldestPending.Equal(time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)))

	require.Equal(t, []AuthorTotals{
		{Author: "ana", Owed: 100, Paid: 70, ProjectedOwed: 200, PendingCount: 1, PaidCount: 1},
		{Author: "bo", Owed: 50, ProjectedOwed: 100, PendingCount: 1},
		{Author: "cy", Paid: 30, PaidCount: 1},
	}, r.Authors)

	require.Equal(t, before, entries, "input untouched")
}

func TestGenerateEmpty(t *testing.T) {
	r, err := Generate(nil, 3, now)
	require.NoError(t, err)
	require.Zero(t, r.Owed)
	require.Zero(t, r.ProjectedOwed)
	require.Nil(t, r.OldestPending)
	require.NotNil(t, r.Authors)
	require.Empty(t, r.Authors)
}

func TestGenerateRejectsMultiplier(t *testing.T) {
	_, err := Generate(nil, 0, now)
	require.ErrorIs(t, err, ErrInvalidMultiplier)
	_, err = Generate(nil, -1, now)
	require.ErrorIs(t, err, ErrInvalidMultiplier)
}

func TestAuthorTieBreak(t *testing.T) {
	r, err := Generate([]ledger.Entry{
		e("1", "zed", 10, ledger.StatusPending, 1),
		e("2", "amy", 10, ledger.StatusPending, 1),
	}, 1, now)
	require.NoError(t, err)
	require.Equal(t, "amy", r.Authors[0].Author)
	require.Equal(t, "zed", r.Authors[1].Author)
}
