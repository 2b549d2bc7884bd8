package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/state"
	"github.com/jask/bountyledger/internal/triage"
)

// Prompt is everything the operator sees for one decision.
type Prompt struct {
	Item      triage.Item
	Position  int // 1-based
	Total     int
	Checklist []string
	// LastError is the failure of the previous attempt on this item.
	LastError error
	Now       time.Time
}

// Prompter asks the operator for a decision. Returning ErrAbandoned ends
// the run with no side effect for the current item.
type Prompter interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
}

// Result is how one queue item ended.
type Result struct {
	ID       string
	Priority triage.Priority
	Outcome  Outcome
	Attempts int
	Err      error
}

// Summary is the per-item record of a run.
type Summary struct {
	Results   []Result
	Abandoned bool
}

// Count returns how many items ended in st.
func (s Summary) Count(st State) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome.State == st {
			n++
		}
	}
	return n
}

// Runner walks the triage queue, one session per contribution.
type Runner struct {
	Host      remote.Host
	Ledger    Recorder
	Policy    triage.Policy
	Deferrals *state.Deferrals
	Prompter  Prompter
	Options   Options
}

// Run lists the open set, orders it and reviews every item until the queue
// is empty or the operator abandons. Skipped items are deferred to the tail
// of the next run's queue.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	opts := r.Options.withDefaults()
	log := opts.Logger
	var sum Summary

	open, err := r.listOpen(ctx, opts.Timeout)
	if err != nil {
		return sum, err
	}

	deferrals := r.Deferrals
	if deferrals == nil {
		deferrals = &state.Deferrals{}
	}
	openIDs := make(map[string]bool, len(open))
	for _, c := range open {
		openIDs[c.ID] = true
	}
	deferrals.Prune(openIDs)

	items, err := r.Policy.Order(open, deferrals.IDs())
	if err != nil {
		return sum, err
	}
	log.Info("queue ready", zap.Int("open", len(items)), zap.Int("deferred", len(deferrals.IDs())))

	for i, item := range items {
		res, stop, err := r.review(ctx, opts, item, i+1, len(items))
		sum.Results = append(sum.Results, res)
		switch res.Outcome.State {
		case StateSkipped:
			deferrals.Defer(item.ID)
		case StatePresented, StateAbandoned:
		default:
			deferrals.Clear(item.ID)
		}
		if saveErr := deferrals.Save(); saveErr != nil {
			log.Warn("save deferrals", zap.Error(saveErr))
		}
		if err != nil {
			return sum, err
		}
		if stop {
			sum.Abandoned = true
			return sum, nil
		}
	}
	return sum, nil
}

func (r *Runner) listOpen(ctx context.Context, timeout time.Duration) ([]remote.Contribution, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	open, err := r.Host.ListOpen(cctx)
	if err != nil {
		return nil, fmt.Errorf("list open contributions: %w", remote.Classify(cctx, err))
	}
	return open, nil
}

// review prompts until the session leaves PRESENTED. stop is true when the
// operator abandoned; a non-nil error is fatal for the run.
func (r *Runner) review(ctx context.Context, opts Options, item triage.Item, pos, total int) (Result, bool, error) {
	s := NewSession(r.Host, r.Ledger, item, opts)
	res := Result{ID: item.ID, Priority: item.Priority}
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = s.outcome()
			return res, false, err
		}
		d, err := r.Prompter.Decide(ctx, Prompt{
			Item:      item,
			Position:  pos,
			Total:     total,
			Checklist: s.Checklist(),
			LastError: lastErr,
			Now:       opts.Now(),
		})
		if errors.Is(err, ErrAbandoned) {
			_ = s.Abandon()
			res.Outcome = s.outcome()
			res.Err = lastErr
			return res, true, nil
		}
		if err != nil {
			res.Outcome = s.outcome()
			return res, false, fmt.Errorf("prompt %s: %w", item.ID, err)
		}

		res.Attempts++
		out, err := s.Apply(ctx, d)
		res.Outcome = out
		if err == nil {
			res.Err = nil
			return res, false, nil
		}
		if s.State() != StatePresented {
			// merged but the ledger refused the entry
			res.Err = err
			return res, false, err
		}
		lastErr = err
		res.Err = err
	}
}
