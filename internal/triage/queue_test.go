package triage

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/jask/bountyledger/internal/remote"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func contrib(id string, bounty int64, unblocks bool, opened time.Time) remote.Contribution {
	return remote.Contribution{ID: id, Author: "dev", Title: "t " + id, Bounty: bounty, Unblocks: unblocks, OpenedAt: opened, Mergeable: true}
}

func itemIDs(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestClassify(t *testing.T) {
	p := Policy{HighValueThreshold: 500}
	cases := []struct {
		name string
		c    remote.Contribution
		want Priority
	}{
		{"blocking wins over bounty", contrib("1", 0, true, t0), PriorityBlocking},
		{"blocking with bounty", contrib("1", 900, true, t0), PriorityBlocking},
		{"at threshold", contrib("1", 500, false, t0), PriorityHigh},
		{"above threshold", contrib("1", 501, false, t0), PriorityHigh},
		{"below threshold", contrib("1", 499, false, t0), PriorityStandard},
		{"smallest bounty", contrib("1", 1, false, t0), PriorityStandard},
		{"no bounty", contrib("1", 0, false, t0), PriorityNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.Classify(tc.c))
		})
	}

	zero := Policy{}
	require.Equal(t, PriorityNone, zero.Classify(contrib("1", 0, false, t0)), "a zero threshold never promotes unpaid work")
	require.Equal(t, PriorityHigh, zero.Classify(contrib("1", 1, false, t0)))
}

func TestPriorityString(t *testing.T) {
	require.Equal(t, "blocking", PriorityBlocking.String())
	require.Equal(t, "high", PriorityHigh.String())
	require.Equal(t, "standard", PriorityStandard.String())
	require.Equal(t, "none", PriorityNone.String())
}

func TestOrder(t *testing.T) {
	p := Policy{HighValueThreshold: 500}
	open := []remote.Contribution{
		contrib("C5", 0, false, t0),
		contrib("C4", 100, false, t0.Add(time.Hour)),
		contrib("C3", 100, false, t0),
		contrib("C2", 1000, false, t0.Add(48*time.Hour)),
		contrib("C1", 0, true, t0.Add(72*time.Hour)),
		contrib("C0", 100, false, t0),
	}

	items, err := p.Order(open, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"C1", "C2", "C0", "C3", "C4", "C5"}, itemIDs(items))
	require.Equal(t, PriorityBlocking, items[0].Priority)
	require.False(t, items[0].Deferred)
}

func TestOrderPutsDeferredAtTailInSkipOrder(t *testing.T) {
	p := Policy{HighValueThreshold: 500}
	open := []remote.Contribution{
		contrib("A", 0, true, t0),
		contrib("B", 700, false, t0),
		contrib("C", 10, false, t0),
		contrib("D", 0, false, t0),
	}

	items, err := p.Order(open, []string{"B", "gone", "A", "B"})
	require.NoError(t, err)
	require.Equal(t, []string{"C", "D", "B", "A"}, itemIDs(items))
	require.True(t, items[2].Deferred)
	require.True(t, items[3].Deferred)
	require.Equal(t, PriorityHigh, items[2].Priority, "deferral moves an item without reclassifying it")
}

func TestOrderRejectsDuplicateIdentifiers(t *testing.T) {
	p := Policy{HighValueThreshold: 500}
	_, err := p.Order([]remote.Contribution{contrib("X", 1, false, t0), contrib("X", 2, false, t0)}, nil)
	require.ErrorIs(t, err, ErrDuplicateContribution)
}

func TestUnknownOpenTimeSortsAsNewest(t *testing.T) {
	p := Policy{HighValueThreshold: 500}
	now := t0.Add(96 * time.Hour)
	open := []remote.Contribution{
		contrib("Z", 10, false, time.Time{}),
		contrib("Y", 10, false, t0.Add(time.Hour)),
		contrib("X", 10, false, t0),
		contrib("W", 10, false, time.Time{}),
	}

	items, err := p.Order(open, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y", "W", "Z"}, itemIDs(items))
	for i := 1; i < len(items); i++ {
		require.GreaterOrEqual(t, items[i-1].Age(now), items[i].Age(now), "queue order agrees with displayed age")
	}
}

func TestOrderEmpty(t *testing.T) {
	items, err := Policy{}.Order(nil, []string{"A"})
	require.NoError(t, err)
	require.Empty(t, items)
}

func genContributions() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.Int64Range(0, 1200),
		gen.Bool(),
		gen.IntRange(0, 5),
	)).Map(func(raw [][]interface{}) []remote.Contribution {
		out := make([]remote.Contribution, 0, len(raw))
		for i, r := range raw {
			out = append(out, contrib(
				fmt.Sprintf("P%03d", i),
				r[0].(int64),
				r[1].(bool),
				t0.Add(time.Duration(r[2].(int))*time.Hour),
			))
		}
		return out
	})
}

func TestOrderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	p := Policy{HighValueThreshold: 500}

	properties.Property("adjacent items respect priority then age then identifier", prop.ForAll(
		func(open []remote.Contribution) bool {
			items, err := p.Order(open, nil)
			if err != nil || len(items) != len(open) {
				return false
			}
			for i := 1; i < len(items); i++ {
				a, b := items[i-1], items[i]
				if a.Priority < b.Priority {
					return false
				}
				if a.Priority == b.Priority && a.OpenedAt.After(b.OpenedAt) {
					return false
				}
				if a.Priority == b.Priority && a.OpenedAt.Equal(b.OpenedAt) && a.ID >= b.ID {
					return false
				}
			}
			return true
		},
		genContributions(),
	))

	properties.Property("input order does not matter", prop.ForAll(
		func(open []remote.Contribution) bool {
			reversed := make([]remote.Contribution, len(open))
			for i, c := range open {
				reversed[len(open)-1-i] = c
			}
			a, errA := p.Order(open, nil)
			b, errB := p.Order(reversed, nil)
			if errA != nil || errB != nil {
				return false
			}
			return fmt.Sprint(itemIDs(a)) == fmt.Sprint(itemIDs(b))
		},
		genContributions(),
	))

	properties.TestingRun(t)
}
