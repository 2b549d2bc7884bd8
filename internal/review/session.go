// Package review drives one contribution at a time from presentation to a
// terminal decision, and runs those sessions over a triage queue.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jask/bountyledger/internal/ledger"
	"github.com/jask/bountyledger/internal/logging"
	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/triage"
)

var (
	ErrInvalidTransition = errors.New("review: invalid transition")
	ErrMessageRequired   = errors.New("review: message required")
	ErrAbandoned         = errors.New("review: abandoned by operator")
)

// State is a session state.
type State string

const (
	StatePresented        State = "PRESENTED"
	StateApproved         State = "APPROVED"
	StateMerged           State = "MERGED"
	StateLedgerRecorded   State = "LEDGER_RECORDED"
	StateChangesRequested State = "CHANGES_REQUESTED"
	StateCommented        State = "COMMENTED"
	StateSkipped          State = "SKIPPED"
	StateAbandoned        State = "ABANDONED"
)

// Terminal reports whether no further decision can be applied. MERGED is
// terminal only when nothing is owed for the contribution.
func (s State) Terminal() bool {
	switch s {
	case StateLedgerRecorded, StateChangesRequested, StateCommented, StateSkipped, StateAbandoned:
		return true
	}
	return false
}

// Checklist is shown with every presented contribution. It is a prompt for
// the operator, nothing checks it.
var Checklist = []string{
	"Complete implementation",
	"Adequate test coverage",
	"Documentation present",
	"Integrates with existing work",
	"No known defects",
}

// DecisionKind is what the operator chose.
type DecisionKind string

const (
	DecisionApprove        DecisionKind = "approve"
	DecisionRequestChanges DecisionKind = "request_changes"
	DecisionComment        DecisionKind = "comment"
	DecisionSkip           DecisionKind = "skip"
)

// Decision is one operator verdict on a presented contribution.
type Decision struct {
	Kind    DecisionKind
	Message string
}

// Validate checks the decision on its own.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionApprove, DecisionSkip:
		return nil
	case DecisionRequestChanges, DecisionComment:
		if strings.TrimSpace(d.Message) == "" {
			return fmt.Errorf("%s: %w", d.Kind, ErrMessageRequired)
		}
		return nil
	}
	return fmt.Errorf("review: unknown decision %q", d.Kind)
}

// Recorder is the part of the ledger a session writes to.
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
	Get(ctx context.Context, contributionID string) (ledger.Entry, error)
}

// Outcome describes what a decision did.
type Outcome struct {
	ID    string
	State State
	// Merge is set once the host confirmed the merge.
	Merge *remote.MergeResult
	// Entry is the ledger entry written, or the one that already existed.
	Entry           *ledger.Entry
	AlreadyRecorded bool
}

// Options tune a session. Zero values fall back to defaults.
type Options struct {
	Strategy remote.MergeStrategy
	Timeout  time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

const defaultTimeout = 30 * time.Second

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = remote.MergeSquash
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session reviews a single contribution. It is not safe for concurrent use.
type Session struct {
	host   remote.Host
	ledger Recorder
	item   triage.Item
	opts   Options
	log    *zap.Logger

	state State
	// set when an approve failed with the merge outcome unknown
	mergeUncertain bool
	merge          *remote.MergeResult
}

// NewSession presents item.
func NewSession(host remote.Host, rec Recorder, item triage.Item, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		host:   host,
		ledger: rec,
		item:   item,
		opts:   opts,
		log:    opts.Logger.With(zap.String("contribution", item.ID)),
		state:  StatePresented,
	}
}

func (s *Session) State() State        { return s.state }
func (s *Session) Item() triage.Item   { return s.item }
func (s *Session) Checklist() []string { return append([]string(nil), Checklist...) }

// Abandon ends the session without side effects. Only a presented session
// can be abandoned.
func (s *Session) Abandon() error {
	if s.state != StatePresented {
		return fmt.Errorf("%s: abandon from %s: %w", s.item.ID, s.state, ErrInvalidTransition)
	}
	s.state = StateAbandoned
	return nil
}

// Apply carries out d. On any remote failure the session is back in
// PRESENTED and the error says why.
func (s *Session) Apply(ctx context.Context, d Decision) (Outcome, error) {
	if s.state != StatePresented {
		return s.outcome(), fmt.Errorf("%s: %s from %s: %w", s.item.ID, d.Kind, s.state, ErrInvalidTransition)
	}
	if err := d.Validate(); err != nil {
		return s.outcome(), fmt.Errorf("%s: %w", s.item.ID, err)
	}

	switch d.Kind {
	case DecisionSkip:
		s.state = StateSkipped
		s.log.Info("skipped")
		return s.outcome(), nil
	case DecisionRequestChanges:
		err := s.call(ctx, "request changes", func(ctx context.Context) error {
			return s.host.RequestChanges(ctx, s.item.ID, d.Message)
		})
		if err != nil {
			return s.outcome(), err
		}
		s.state = StateChangesRequested
		s.log.Info("changes requested")
		return s.outcome(), nil
	case DecisionComment:
		err := s.call(ctx, "comment", func(ctx context.Context) error {
			return s.host.Comment(ctx, s.item.ID, d.Message)
		})
		if err != nil {
			return s.outcome(), err
		}
		s.state = StateCommented
		s.log.Info("commented")
		return s.outcome(), nil
	default:
		return s.approve(ctx)
	}
}

func (s *Session) approve(ctx context.Context) (Outcome, error) {
	s.state = StateApproved

	var mergeable bool
	err := s.call(ctx, "check mergeable", func(ctx context.Context) error {
		var err error
		mergeable, err = s.host.CheckMergeable(ctx, s.item.ID)
		return err
	})
	if err != nil {
		s.state = StatePresented
		return s.outcome(), err
	}
	// After a lost merge response the host may already have merged it and
	// now reports it unmergeable; its merge call sorts out which.
	if !mergeable && !s.mergeUncertain {
		s.state = StatePresented
		s.log.Warn("not mergeable")
		return s.outcome(), fmt.Errorf("%s: %w", s.item.ID, remote.ErrConflict)
	}

	var res remote.MergeResult
	err = s.call(ctx, "merge", func(ctx context.Context) error {
		var err error
		res, err = s.host.ApproveAndMerge(ctx, s.item.ID, s.opts.Strategy)
		return err
	})
	if err != nil {
		s.state = StatePresented
		// Only an explicit refusal proves nothing landed.
		if !errors.Is(err, remote.ErrConflict) && !errors.Is(err, remote.ErrNotFound) {
			s.mergeUncertain = true
		}
		return s.outcome(), err
	}
	s.mergeUncertain = false
	s.merge = &res
	s.state = StateMerged
	s.log.Info("merged", zap.String("commit", res.CommitSHA), zap.Bool("already_merged", res.AlreadyMerged))
	if res.CleanupPending {
		s.log.Warn("merged with branch cleanup pending")
	}

	if s.item.Bounty <= 0 {
		return s.outcome(), nil
	}
	return s.record(ctx)
}

func (s *Session) record(ctx context.Context) (Outcome, error) {
	mergedAt := s.merge.MergedAt
	if mergedAt.IsZero() {
		mergedAt = s.opts.Now()
	}
	e := ledger.Entry{
		ContributionID: s.item.ID,
		Author:         s.item.Author,
		Feature:        s.item.Title,
		Amount:         s.item.Bounty,
		MergedAt:       mergedAt.UTC(),
		Status:         ledger.StatusPending,
	}
	out := s.outcome()
	err := s.ledger.Append(ctx, e)
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		s.log.Warn("ledger entry already recorded", zap.Error(err))
		s.state = StateLedgerRecorded
		out = s.outcome()
		out.AlreadyRecorded = true
		stored, gerr := s.ledger.Get(ctx, e.ContributionID)
		if gerr != nil {
			return out, fmt.Errorf("%s: read recorded bounty: %w", s.item.ID, gerr)
		}
		if stored.Amount != e.Amount {
			s.log.Warn("recorded bounty differs", zap.Int64("recorded", stored.Amount), zap.Int64("labelled", e.Amount))
		}
		out.Entry = &stored
		return out, nil
	case err != nil:
		s.log.Error("merged but ledger append failed", zap.Int64("amount", e.Amount), zap.Error(err))
		return out, fmt.Errorf("%s: merged, record bounty of %d: %w", s.item.ID, e.Amount, err)
	default:
		s.log.Info("ledger entry recorded", zap.Int64("amount", e.Amount))
		s.state = StateLedgerRecorded
		out = s.outcome()
	}
	out.Entry = &e
	return out, nil
}

// call runs one remote operation under the session timeout.
func (s *Session) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	err := remote.Classify(cctx, fn(cctx))
	if err == nil {
		return nil
	}
	s.log.Error(op+" failed", zap.Error(err))
	return fmt.Errorf("%s %s: %w", op, s.item.ID, err)
}

func (s *Session) outcome() Outcome {
	return Outcome{ID: s.item.ID, State: s.state, Merge: s.merge}
}
