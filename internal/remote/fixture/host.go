// Package fixture is an in-memory remote.Host. It backs dry runs from a YAML
// file and is the deterministic double the review and batch tests drive.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jask/bountyledger/internal/remote"
)

// Op names a Host method for failure injection.
type Op string

const (
	OpListOpen        Op = "list_open"
	OpApproveAndMerge Op = "approve_and_merge"
	OpRequestChanges  Op = "request_changes"
	OpComment         Op = "comment"
	OpCheckMergeable  Op = "check_mergeable"
)

// Action is one recorded outward call that changed host state.
type Action struct {
	Op      Op
	ID      string
	Message string
}

type file struct {
	Contributions []item `yaml:"contributions"`
}

type item struct {
	ID        string    `yaml:"id"`
	Author    string    `yaml:"author"`
	Title     string    `yaml:"title"`
	Bounty    int64     `yaml:"bounty"`
	Unblocks  bool      `yaml:"unblocks"`
	OpenedAt  time.Time `yaml:"opened_at"`
	Mergeable bool      `yaml:"mergeable"`
	Branch    string    `yaml:"branch"`
}

// Host keeps the open set in memory.
type Host struct {
	mu      sync.Mutex
	open    map[string]remote.Contribution
	merged  map[string]remote.MergeResult
	actions []Action
	before  map[Op][]error // returned instead of running the op
	after   map[Op][]error // returned after the op took effect
	now     func() time.Time
}

// New returns a host whose open set is cs.
func New(cs ...remote.Contribution) *Host {
	h := &Host{
		open:   make(map[string]remote.Contribution, len(cs)),
		merged: make(map[string]remote.MergeResult),
		before: make(map[Op][]error),
		after:  make(map[Op][]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, c := range cs {
		h.open[c.ID] = c
	}
	return h
}

// Load reads contributions from a YAML file.
func Load(path string) (*Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture: parse %s: %w", path, err)
	}
	cs := make([]remote.Contribution, 0, len(f.Contributions))
	seen := make(map[string]bool)
	for _, it := range f.Contributions {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return nil, fmt.Errorf("fixture: %s: contribution without id", path)
		}
		if seen[id] {
			return nil, fmt.Errorf("fixture: %s: duplicate id %s", path, id)
		}
		seen[id] = true
		cs = append(cs, remote.Contribution{
			ID: id, Author: it.Author, Title: it.Title, Bounty: it.Bounty, Unblocks: it.Unblocks,
			OpenedAt: it.OpenedAt.UTC(), Mergeable: it.Mergeable, Branch: it.Branch,
		})
	}
	return New(cs...), nil
}

// SetClock replaces the time source used for merge timestamps.
func (h *Host) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

// FailNext makes the next call to op return err without effect.
func (h *Host) FailNext(op Op, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before[op] = append(h.before[op], err)
}

// FailAfterNext makes the next call to op take effect and then return err,
// as when a response is lost after the host acted.
func (h *Host) FailAfterNext(op Op, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after[op] = append(h.after[op], err)
}

// SetMergeable flips the conflict state of an open contribution.
func (h *Host) SetMergeable(id string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, found := h.open[id]; found {
		c.Mergeable = ok
		h.open[id] = c
	}
}

// Actions returns the recorded state-changing calls in order.
func (h *Host) Actions() []Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Action(nil), h.actions...)
}

// Merged reports whether id has been merged.
func (h *Host) Merged(id string) (remote.MergeResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.merged[id]
	return r, ok
}

func (h *Host) ListOpen(ctx context.Context) ([]remote.Contribution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.takeLocked(ctx, h.before, OpListOpen); err != nil {
		return nil, err
	}
	out := make([]remote.Contribution, 0, len(h.open))
	for _, c := range h.open {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *Host) CheckMergeable(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.takeLocked(ctx, h.before, OpCheckMergeable); err != nil {
		return false, err
	}
	c, ok := h.open[id]
	if !ok {
		if _, merged := h.merged[id]; merged {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", id, remote.ErrNotFound)
	}
	return c.Mergeable, nil
}

func (h *Host) ApproveAndMerge(ctx context.Context, id string, strategy remote.MergeStrategy) (remote.MergeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.takeLocked(ctx, h.before, OpApproveAndMerge); err != nil {
		return remote.MergeResult{}, err
	}
	if res, ok := h.merged[id]; ok {
		res.AlreadyMerged = true
		return res, nil
	}
	c, ok := h.open[id]
	if !ok {
		return remote.MergeResult{}, fmt.Errorf("%s: %w", id, remote.ErrNotFound)
	}
	if !c.Mergeable {
		return remote.MergeResult{}, fmt.Errorf("%s: %w", id, remote.ErrConflict)
	}
	res := remote.MergeResult{
		ID:        id,
		CommitSHA: strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(strategy)+":"+id)).String(), "-", ""),
		MergedAt:  h.now(),
	}
	delete(h.open, id)
	h.merged[id] = res
	h.actions = append(h.actions, Action{Op: OpApproveAndMerge, ID: id, Message: string(strategy)})
	if err := h.takeLocked(ctx, h.after, OpApproveAndMerge); err != nil {
		return remote.MergeResult{}, err
	}
	return res, nil
}

func (h *Host) RequestChanges(ctx context.Context, id, message string) error {
	return h.annotate(ctx, OpRequestChanges, id, message)
}

func (h *Host) Comment(ctx context.Context, id, message string) error {
	return h.annotate(ctx, OpComment, id, message)
}

func (h *Host) annotate(ctx context.Context, op Op, id, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.takeLocked(ctx, h.before, op); err != nil {
		return err
	}
	if _, ok := h.open[id]; !ok {
		return fmt.Errorf("%s: %w", id, remote.ErrNotFound)
	}
	h.actions = append(h.actions, Action{Op: op, ID: id, Message: message})
	return h.takeLocked(ctx, h.after, op)
}

func (h *Host) takeLocked(ctx context.Context, queue map[Op][]error, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errs := queue[op]
	if len(errs) == 0 {
		return nil
	}
	queue[op] = errs[1:]
	return errs[0]
}

var _ remote.Host = (*Host)(nil)
