package review

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/bountyledger/internal/ledger"
	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/remote/fixture"
	"github.com/jask/bountyledger/internal/state"
)

// script answers prompts per contribution id, in order.
type script struct {
	answers map[string][]Decision
	prompts []Prompt
}

func (s *script) Decide(_ context.Context, p Prompt) (Decision, error) {
	s.prompts = append(s.prompts, p)
	queue := s.answers[p.Item.ID]
	if len(queue) == 0 {
		return Decision{}, ErrAbandoned
	}
	s.answers[p.Item.ID] = queue[1:]
	return queue[0], nil
}

func (s *script) order() []string {
	var out []string
	for _, p := range s.prompts {
		if len(out) == 0 || out[len(out)-1] != p.Item.ID {
			out = append(out, p.Item.ID)
		}
	}
	return out
}

func approve() Decision { return Decision{Kind: DecisionApprove} }
func skip() Decision    { return Decision{Kind: DecisionSkip} }

func loadDeferrals(t *testing.T, path string) *state.Deferrals {
	t.Helper()
	d, err := state.Load(path)
	require.NoError(t, err)
	return d
}

func TestRunnerReviewsQueueInPriorityOrder(t *testing.T) {
	ctx := context.Background()
	host := newHost(
		contribution("none", 0, false, true),
		contribution("std", 40, false, true),
		contribution("high", 900, false, true),
		contribution("block", 0, true, true),
	)
	l := newLedger(t)
	p := &script{answers: map[string][]Decision{
		"block": {approve()},
		"high":  {approve()},
		"std":   {{Kind: DecisionComment, Message: "rebase please"}},
		"none":  {{Kind: DecisionRequestChanges, Message: "missing docs"}},
	}}

	r := &Runner{Host: host, Ledger: l, Policy: policy, Prompter: p}
	sum, err := r.Run(ctx)
	require.NoError(t, err)
	require.False(t, sum.Abandoned)
	require.Equal(t, []string{"block", "high", "std", "none"}, p.order())
	require.Len(t, sum.Results, 4)
	require.Equal(t, 1, sum.Count(StateMerged))
	require.Equal(t, 1, sum.Count(StateLedgerRecorded))
	require.Equal(t, 1, sum.Count(StateCommented))
	require.Equal(t, 1, sum.Count(StateChangesRequested))

	require.Equal(t, 1, p.prompts[0].Position)
	require.Equal(t, 4, p.prompts[0].Total)
	require.Len(t, p.prompts[0].Checklist, 5)

	owed, err := l.ListOwed(ctx)
	require.NoError(t, err)
	require.Len(t, owed, 1)
	require.Equal(t, "high", owed[0].ContributionID)
}

func TestRunnerRepromptsAfterFailure(t *testing.T) {
	ctx := context.Background()
	host := newHost(contribution("C3", 100, false, false))
	l := newLedger(t)
	p := &script{answers: map[string][]Decision{"C3": {approve(), skip()}}}

	r := &Runner{Host: host, Ledger: l, Policy: policy, Prompter: p}
	sum, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, p.prompts, 2)
	require.Nil(t, p.prompts[0].LastError)
	require.ErrorIs(t, p.prompts[1].LastError, remote.ErrConflict)

	require.Len(t, sum.Results, 1)
	require.Equal(t, StateSkipped, sum.Results[0].Outcome.State)
	require.Equal(t, 2, sum.Results[0].Attempts)
	require.Nil(t, sum.Results[0].Err)
}

func TestRunnerDefersSkippedItemsToTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deferrals.json")
	host := newHost(
		contribution("A", 0, true, true),
		contribution("B", 600, false, true),
		contribution("C", 10, false, true),
	)
	l := newLedger(t)

	first := &script{answers: map[string][]Decision{
		"A": {skip()},
		"B": {skip()},
		"C": {{Kind: DecisionComment, Message: "ping"}},
	}}
	r := &Runner{Host: host, Ledger: l, Policy: policy, Prompter: first, Deferrals: loadDeferrals(t, path)}
	_, err := r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, first.order())
	require.Equal(t, []string{"A", "B"}, loadDeferrals(t, path).IDs())

	second := &script{answers: map[string][]Decision{
		"A": {approve()},
		"B": {skip()},
		"C": {skip()},
	}}
	r = &Runner{Host: host, Ledger: l, Policy: policy, Prompter: second, Deferrals: loadDeferrals(t, path)}
	_, err = r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"C", "A", "B"}, second.order())
	// A merged and left the open set; C then B were skipped in that order
	require.Equal(t, []string{"C", "B"}, loadDeferrals(t, path).IDs())
}

func TestRunnerAbandonStopsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	host := newHost(contribution("A", 0, true, true), contribution("B", 50, false, true))
	l := newLedger(t)
	p := &script{answers: map[string][]Decision{}}

	r := &Runner{Host: host, Ledger: l, Policy: policy, Prompter: p}
	sum, err := r.Run(ctx)
	require.NoError(t, err)
	require.True(t, sum.Abandoned)
	require.Len(t, sum.Results, 1)
	require.Equal(t, StateAbandoned, sum.Results[0].Outcome.State)
	require.Empty(t, host.Actions())

	all, err := l.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestRunnerStopsOnLedgerFailure(t *testing.T) {
	ctx := context.Background()
	host := newHost(contribution("A", 10, true, true), contribution("B", 10, false, true))
	p := &script{answers: map[string][]Decision{"A": {approve()}, "B": {approve()}}}

	r := &Runner{Host: host, Ledger: failingRecorder{err: ledger.ErrCorruptLedger}, Policy: policy, Prompter: p}
	sum, err := r.Run(ctx)
	require.ErrorIs(t, err, ledger.ErrCorruptLedger)
	require.Len(t, sum.Results, 1)
	require.Equal(t, StateMerged, sum.Results[0].Outcome.State)
	require.True(t, isOpen(t, host, "B"))
}

func TestRunnerListFailure(t *testing.T) {
	host := newHost(contribution("A", 10, false, true))
	host.FailNext(fixture.OpListOpen, remote.Unavailable("list", "", errors.New("dns")))

	r := &Runner{Host: host, Ledger: newLedger(t), Policy: policy, Prompter: &script{}}
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, remote.ErrRemoteUnavailable)
}

type failingPrompter struct{}

func (failingPrompter) Decide(context.Context, Prompt) (Decision, error) {
	return Decision{}, errors.New("terminal closed")
}

func TestRunnerPromptErrorIsFatal(t *testing.T) {
	host := newHost(contribution("A", 10, false, true))
	r := &Runner{Host: host, Ledger: newLedger(t), Policy: policy, Prompter: failingPrompter{}, Options: Options{Timeout: time.Second}}
	_, err := r.Run(context.Background())
	require.ErrorContains(t, err, "terminal closed")
}
