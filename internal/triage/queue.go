// Package triage orders the open contribution set for review.
package triage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jask/bountyledger/internal/remote"
)

// Priority is derived from a contribution, never set by hand.
type Priority int

// Higher values sort first.
const (
	PriorityNone Priority = iota
	PriorityStandard
	PriorityHigh
	PriorityBlocking
)

func (p Priority) String() string {
	switch p {
	case PriorityBlocking:
		return "blocking"
	case PriorityHigh:
		return "high"
	case PriorityStandard:
		return "standard"
	default:
		return "none"
	}
}

var ErrDuplicateContribution = errors.New("triage: duplicate contribution identifier")

// Policy holds the classification thresholds.
type Policy struct {
	HighValueThreshold int64
}

// Classify is a pure function of the contribution's attributes.
func (p Policy) Classify(c remote.Contribution) Priority {
	switch {
	case c.Unblocks:
		return PriorityBlocking
	case c.Bounty >= p.HighValueThreshold && c.Bounty > 0:
		return PriorityHigh
	case c.Bounty > 0:
		return PriorityStandard
	default:
		return PriorityNone
	}
}

// Item pairs a contribution with its derived priority.
type Item struct {
	remote.Contribution
	Priority Priority
	Deferred bool
}

// Order returns the review sequence: priority class first, then oldest
// first, then identifier. Ids in deferred that are still open are pulled out
// and appended in deferred order regardless of priority. Ids no longer open
// are ignored.
func (p Policy) Order(open []remote.Contribution, deferred []string) ([]Item, error) {
	byID := make(map[string]remote.Contribution, len(open))
	for _, c := range open {
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateContribution, c.ID)
		}
		byID[c.ID] = c
	}

	tail := make([]Item, 0, len(deferred))
	skip := make(map[string]bool, len(deferred))
	for _, id := range deferred {
		c, ok := byID[id]
		if !ok || skip[id] {
			continue
		}
		skip[id] = true
		tail = append(tail, Item{Contribution: c, Priority: p.Classify(c), Deferred: true})
	}

	head := make([]Item, 0, len(open))
	for _, c := range open {
		if skip[c.ID] {
			continue
		}
		head = append(head, Item{Contribution: c, Priority: p.Classify(c)})
	}
	sort.Slice(head, func(i, j int) bool { return Less(head[i], head[j]) })

	return append(head, tail...), nil
}

// Less is the queue's total order.
func Less(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.OpenedAt.Equal(b.OpenedAt) {
		// an unknown open time counts as newest, as it does for Age
		if a.OpenedAt.IsZero() || b.OpenedAt.IsZero() {
			return b.OpenedAt.IsZero()
		}
		return a.OpenedAt.Before(b.OpenedAt)
	}
	return a.ID < b.ID
}
