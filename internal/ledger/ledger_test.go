package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type backendFactory func(t *testing.T, dir string) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"file": func(t *testing.T, dir string) Backend {
			b, err := OpenFile(filepath.Join(dir, "ledger.jsonl"))
			require.NoError(t, err)
			return b
		},
		"sqlite": func(t *testing.T, dir string) Backend {
			b, err := OpenSQLite(context.Background(), filepath.Join(dir, "ledger.db"))
			require.NoError(t, err)
			return b
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, open func() *Ledger)) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			fn(t, func() *Ledger {
				l := New(factory(t, dir))
				t.Cleanup(func() { _ = l.Close() })
				return l
			})
		})
	}
}

func entry(id string, amount int64, mergedAt time.Time) Entry {
	return Entry{ContributionID: id, Author: "author-" + id, Feature: "feature " + id, Amount: amount, MergedAt: mergedAt}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ContributionID)
	}
	return out
}

func TestAppendAndListOwedOrdered(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		l := open()

		require.NoError(t, l.Append(ctx, entry("C3", 30, base.Add(2*time.Hour))))
		require.NoError(t, l.Append(ctx, entry("C1", 10, base)))
		require.NoError(t, l.Append(ctx, entry("C2", 20, base.Add(time.Hour))))

		owed, err := l.ListOwed(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"C1", "C2", "C3"}, ids(owed))
		for _, e := range owed {
			require.Equal(t, StatusPending, e.Status)
		}

		paid, err := l.ListPaid(ctx)
		require.NoError(t, err)
		require.Empty(t, paid)
	})
}

func TestAppendDuplicateLeavesStoreUnchanged(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		l := open()

		require.NoError(t, l.Append(ctx, entry("C1", 100, base)))
		before, err := l.List(ctx)
		require.NoError(t, err)

		dup := entry("C1", 999, base.Add(time.Hour))
		require.ErrorIs(t, l.Append(ctx, dup), ErrDuplicateEntry)

		after, err := l.List(ctx)
		require.NoError(t, err)
		require.Equal(t, before, after)
	})
}

func TestMarkPaidIsNotIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		l := open()

		require.ErrorIs(t, l.MarkPaid(ctx, "missing"), ErrNotFound)

		require.NoError(t, l.Append(ctx, entry("C1", 100, base)))
		require.NoError(t, l.MarkPaid(ctx, "C1"))
		require.ErrorIs(t, l.MarkPaid(ctx, "C1"), ErrAlreadyPaid)

		got, err := l.Get(ctx, "C1")
		require.NoError(t, err)
		require.Equal(t, StatusPaid, got.Status)
		require.Equal(t, int64(100), got.Amount)

		paid, err := l.ListPaid(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"C1"}, ids(paid))
	})
}

func TestTotalOwedAppliesMultiplier(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		l := open()

		require.NoError(t, l.Append(ctx, entry("C1", 100, base)))
		require.NoError(t, l.Append(ctx, entry("C2", 50, base.Add(time.Minute))))
		require.NoError(t, l.Append(ctx, entry("C3", 70, base.Add(2*time.Minute))))
		require.NoError(t, l.MarkPaid(ctx, "C3"))

		total, err := l.TotalOwed(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, int64(300), total)

		total, err = l.TotalOwed(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, int64(150), total, "stored amounts are not scaled")

		_, err = l.TotalOwed(ctx, 0)
		require.Error(t, err)
	})
}

func TestAppendRejectsInvalidEntries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		l := open()

		require.Error(t, l.Append(ctx, entry("", 10, base)))
		require.Error(t, l.Append(ctx, entry("C1", 0, base)))
		require.Error(t, l.Append(ctx, entry("C1", -5, base)))
		require.Error(t, l.Append(ctx, entry("C1", 5, time.Time{})))

		all, err := l.List(ctx)
		require.NoError(t, err)
		require.Empty(t, all)
	})
}

func TestSurvivesReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx := context.Background()
		first := open()
		require.NoError(t, first.Append(ctx, entry("C1", 100, base)))
		require.NoError(t, first.Append(ctx, entry("C2", 40, base.Add(time.Second))))
		require.NoError(t, first.MarkPaid(ctx, "C2"))
		require.NoError(t, first.Close())

		second := open()
		all, err := second.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, StatusPending, all[0].Status)
		require.Equal(t, StatusPaid, all[1].Status)
		require.True(t, all[0].MergedAt.Equal(base))
	})
}

// Two handles on the same store stand in for two processes.
func TestConcurrentHandlesDoNotCorrupt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() *Ledger) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		a, b := open(), open()

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			i := i
			wg.Add(2)
			go func() {
				defer wg.Done()
				errs <- a.Append(ctx, entry(fmt.Sprintf("A%02d", i), int64(i+1), base.Add(time.Duration(i)*time.Second)))
			}()
			go func() {
				defer wg.Done()
				errs <- b.Append(ctx, entry(fmt.Sprintf("B%02d", i), int64(i+1), base.Add(time.Duration(i)*time.Second)))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := a.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 40)

		// the same identifier from both handles: exactly one wins
		results := make(chan error, 2)
		go func() { results <- a.Append(ctx, entry("X", 5, base)) }()
		go func() { results <- b.Append(ctx, entry("X", 5, base)) }()
		first, second := <-results, <-results
		if first == nil {
			require.ErrorIs(t, second, ErrDuplicateEntry)
		} else {
			require.ErrorIs(t, first, ErrDuplicateEntry)
			require.NoError(t, second)
		}
	})
}

func TestFileBackendDetectsCorruption(t *testing.T) {
	cases := map[string]string{
		"torn line":      `{"identifier":"C1","author":"a","feature":"f","amount":10,"merge_date":"2026-03-01T12:00:00Z","status":"PENDING"}` + "\n" + `{"identifier":"C2","auth`,
		"duplicate":      `{"identifier":"C1","author":"a","feature":"f","amount":10,"merge_date":"2026-03-01T12:00:00Z","status":"PENDING"}` + "\n" + `{"identifier":"C1","author":"a","feature":"f","amount":10,"merge_date":"2026-03-01T12:00:00Z","status":"PAID"}`,
		"bad status":     `{"identifier":"C1","author":"a","feature":"f","amount":10,"merge_date":"2026-03-01T12:00:00Z","status":"OWED"}`,
		"non-positive":   `{"identifier":"C1","author":"a","feature":"f","amount":0,"merge_date":"2026-03-01T12:00:00Z","status":"PENDING"}`,
		"missing merged": `{"identifier":"C1","author":"a","feature":"f","amount":5,"status":"PENDING"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))

			_, err := OpenFile(path)
			require.ErrorIs(t, err, ErrCorruptLedger)
		})
	}
}

func TestFileBackendRefusesWritesAfterCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	b, err := OpenFile(path)
	require.NoError(t, err)
	l := New(b)
	require.NoError(t, l.Append(ctx, entry("C1", 10, base)))

	// an outside hand damages the file
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = l.List(ctx)
	require.ErrorIs(t, err, ErrCorruptLedger)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.ErrorIs(t, l.Append(ctx, entry("C2", 10, base)), ErrCorruptLedger, "latched until repaired and reopened")
}

func TestFileFormatIsLineOriented(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	b, err := OpenFile(path)
	require.NoError(t, err)
	l := New(b)
	require.NoError(t, l.Append(ctx, entry("C1", 100, base)))
	require.NoError(t, l.Append(ctx, entry("C2", 50, base.Add(time.Hour))))
	require.NoError(t, l.MarkPaid(ctx, "C1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		`{"identifier":"C1","author":"author-C1","feature":"feature C1","amount":100,"merge_date":"2026-03-01T12:00:00Z","status":"PAID"}`+"\n"+
			`{"identifier":"C2","author":"author-C2","feature":"feature C2","amount":50,"merge_date":"2026-03-01T13:00:00Z","status":"PENDING"}`+"\n",
		string(data))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file renamed away")
}

func TestSuggest(t *testing.T) {
	entries := []Entry{entry("1042", 1, base), entry("1024", 1, base), entry("77", 1, base), entry("1043", 1, base)}
	require.Equal(t, []string{"1042", "1043"}, Suggest(entries, "1041", 2))
	require.Empty(t, Suggest(entries, "zzzzzzzz", 3))
}
