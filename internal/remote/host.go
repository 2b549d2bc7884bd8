// Package remote defines the gateway to the host that holds open
// contributions. Implementations are stateless from the caller's view.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict means the contribution cannot be merged right now. The
	// caller must re-check, never force.
	ErrConflict = errors.New("remote: contribution not mergeable")
	// ErrRemoteUnavailable is a transient failure. Nothing is assumed to
	// have happened; the operation may be re-issued.
	ErrRemoteUnavailable = errors.New("remote: host unavailable")
	ErrNotFound          = errors.New("remote: contribution not found")
)

// MergeStrategy selects how a contribution is integrated.
type MergeStrategy string

const (
	MergeSquash MergeStrategy = "squash"
	MergeCommit MergeStrategy = "merge"
	MergeRebase MergeStrategy = "rebase"
)

// ParseMergeStrategy validates a configured strategy name.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeSquash, MergeCommit, MergeRebase:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("remote: unknown merge strategy %q", s)
}

// Contribution is one open unit of proposed work.
type Contribution struct {
	ID        string
	Author    string
	Title     string
	Bounty    int64 // zero when no bounty is declared
	Unblocks  bool  // flagged as unblocking other declared work
	OpenedAt  time.Time
	Mergeable bool // conflict state at time of query
	Branch    string
}

// Age is the time the contribution has been open as of now.
func (c Contribution) Age(now time.Time) time.Duration {
	if c.OpenedAt.IsZero() || now.Before(c.OpenedAt) {
		return 0
	}
	return now.Sub(c.OpenedAt)
}

// MergeResult reports a completed merge.
type MergeResult struct {
	ID            string
	CommitSHA     string
	MergedAt      time.Time
	AlreadyMerged bool // the host had merged it before this call
	// CleanupPending is set when the merge landed but post-merge cleanup
	// (branch deletion) did not.
	CleanupPending bool
}

// Host is the only outward-facing dependency of the core.
type Host interface {
	// ListOpen returns a fresh snapshot of the open set. It has no side
	// effects and is safe to poll.
	ListOpen(ctx context.Context) ([]Contribution, error)
	// ApproveAndMerge approves, merges and cleans up. It returns success
	// only after verifying the post-merge state, and re-issuing it after a
	// timeout must not merge twice.
	ApproveAndMerge(ctx context.Context, id string, strategy MergeStrategy) (MergeResult, error)
	RequestChanges(ctx context.Context, id, message string) error
	Comment(ctx context.Context, id, message string) error
	CheckMergeable(ctx context.Context, id string) (bool, error)
}

// Unavailable wraps a transport failure as ErrRemoteUnavailable.
func Unavailable(op, id string, cause error) error {
	return fmt.Errorf("%s %s: %w: %v", op, id, ErrRemoteUnavailable, cause)
}

// Classify normalizes an error returned by a Host call made under ctx. A
// call that ran out of time is ErrRemoteUnavailable, whatever the host
// returned. Callers add their own operation context.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer in time: %v", ErrRemoteUnavailable, err)
	}
	return err
}
