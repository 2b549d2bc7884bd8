// Package batch merges an explicit list of contributions that carry no
// bounty, asking for confirmation item by item.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jask/bountyledger/internal/logging"
	"github.com/jask/bountyledger/internal/remote"
)

// Confirmer asks the operator whether to merge c.
type Confirmer interface {
	Confirm(ctx context.Context, c remote.Contribution) (bool, error)
}

type Status string

const (
	StatusMerged  Status = "merged"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip reasons.
const (
	ReasonNotOpen      = "not in the open set"
	ReasonDuplicate    = "listed more than once"
	ReasonHasBounty    = "declares a bounty; review it with triage"
	ReasonNotMergeable = "not mergeable"
	ReasonDeclined     = "declined by operator"
	ReasonConflict     = "conflict at merge time"
)

// Result is how one listed contribution ended.
type Result struct {
	ID     string
	Status Status
	Reason string
	Merge  *remote.MergeResult
	Err    error
}

type Summary struct {
	Results []Result
}

func (s Summary) count(st Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == st {
			n++
		}
	}
	return n
}

func (s Summary) Merged() int  { return s.count(StatusMerged) }
func (s Summary) Skipped() int { return s.count(StatusSkipped) }
func (s Summary) Failed() int  { return s.count(StatusFailed) }

// Runner merges in the order given. A problem with one item never blocks
// the rest of the batch.
type Runner struct {
	Host      remote.Host
	Confirmer Confirmer
	Strategy  remote.MergeStrategy
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Run processes ids in order. The returned error is only for failures that
// end the whole batch: the open set could not be listed, or the operator
// could not be asked.
func (r *Runner) Run(ctx context.Context, ids []string) (Summary, error) {
	log := logging.OrNop(r.Logger)
	var sum Summary

	var open []remote.Contribution
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		open, err = r.Host.ListOpen(ctx)
		return err
	})
	if err != nil {
		return sum, fmt.Errorf("list open contributions: %w", err)
	}
	byID := make(map[string]remote.Contribution, len(open))
	for _, c := range open {
		byID[c.ID] = c
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		res, err := r.one(ctx, log.With(zap.String("contribution", id)), id, byID, seen)
		sum.Results = append(sum.Results, res)
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (r *Runner) one(ctx context.Context, log *zap.Logger, id string, open map[string]remote.Contribution, seen map[string]bool) (Result, error) {
	res := Result{ID: id}
	skip := func(reason string) (Result, error) {
		log.Info("skipped", zap.String("reason", reason))
		res.Status, res.Reason = StatusSkipped, reason
		return res, nil
	}
	fail := func(op string, err error) (Result, error) {
		err = fmt.Errorf("%s %s: %w", op, id, err)
		log.Error(op+" failed", zap.Error(err))
		res.Status, res.Err = StatusFailed, err
		return res, nil
	}

	if seen[id] {
		return skip(ReasonDuplicate)
	}
	seen[id] = true
	c, ok := open[id]
	if !ok {
		return skip(ReasonNotOpen)
	}
	if c.Bounty > 0 {
		return skip(ReasonHasBounty)
	}

	var mergeable bool
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		mergeable, err = r.Host.CheckMergeable(ctx, id)
		return err
	})
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return skip(ReasonNotOpen)
	case err != nil:
		return fail("check mergeable", err)
	case !mergeable:
		return skip(ReasonNotMergeable)
	}

	ok, err = r.Confirmer.Confirm(ctx, c)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res, fmt.Errorf("confirm %s: %w", id, err)
	}
	if !ok {
		return skip(ReasonDeclined)
	}

	var merged remote.MergeResult
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		merged, err = r.Host.ApproveAndMerge(ctx, id, r.strategy())
		return err
	})
	switch {
	case errors.Is(err, remote.ErrConflict):
		return skip(ReasonConflict)
	case err != nil:
		return fail("merge", err)
	}
	log.Info("merged", zap.String("commit", merged.CommitSHA), zap.Bool("already_merged", merged.AlreadyMerged))
	res.Status, res.Merge = StatusMerged, &merged
	return res, nil
}

func (r *Runner) strategy() remote.MergeStrategy {
	if r.Strategy == "" {
		return remote.MergeSquash
	}
	return r.Strategy
}

func (r *Runner) call(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return remote.Classify(cctx, fn(cctx))
}
