// Package github binds remote.Host to the GitHub pull request API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v39/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jask/bountyledger/internal/logging"
	"github.com/jask/bountyledger/internal/remote"
)

// Options configures a Client.
type Options struct {
	Owner             string
	Repo              string
	BaseURL           string // empty for api.github.com
	Token             string
	RequestsPerSecond float64
	BountyLabelPrefix string
	BlockingLabel     string
	MaxRetries        uint
	RetryInterval     time.Duration // first backoff step; default 500ms
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client implements remote.Host. Reads and merges retry with backoff;
// reviews and comments are sent once since a blind retry could post twice.
type Client struct {
	gh            *gh.Client
	owner, repo   string
	bountyPrefix  string
	blockingLabel string
	maxRetries    uint
	retryInterval time.Duration
	log           *zap.Logger

	mu   sync.Mutex
	self string
}

var ErrMissingRepo = errors.New("github: owner and repo are required")

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Owner) == "" || strings.TrimSpace(opts.Repo) == "" {
		return nil, ErrMissingRepo
	}
	client := gh.NewClient(newHTTPClient(opts.HTTPClient, strings.TrimSpace(opts.Token), opts.RequestsPerSecond))
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github: base url: %w", err)
		}
		client.BaseURL = u
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Client{
		gh:            client,
		owner:         opts.Owner,
		repo:          opts.Repo,
		bountyPrefix:  strings.ToLower(opts.BountyLabelPrefix),
		blockingLabel: opts.BlockingLabel,
		maxRetries:    opts.MaxRetries,
		retryInterval: interval,
		log:           logging.OrNop(opts.Logger),
	}, nil
}

func (c *Client) ListOpen(ctx context.Context) ([]remote.Contribution, error) {
	var prs []*gh.PullRequest
	opt := &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	for {
		page, err := retry(ctx, c, func() ([]*gh.PullRequest, error) {
			page, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opt)
			if err != nil {
				return nil, classify("list", c.owner+"/"+c.repo, err)
			}
			opt.Page = resp.NextPage
			return page, nil
		})
		if err != nil {
			return nil, err
		}
		prs = append(prs, page...)
		if opt.Page == 0 {
			break
		}
	}

	// the list endpoint omits mergeability, so fetch each pull request
	out := make([]remote.Contribution, len(prs))
	keep := make([]bool, len(prs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pr := range prs {
		if pr.GetDraft() {
			continue
		}
		i, number := i, pr.GetNumber()
		g.Go(func() error {
			full, err := c.getPR(gctx, number)
			if err != nil {
				return err
			}
			out[i] = c.toContribution(full)
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]remote.Contribution, 0, len(out))
	for i, contrib := range out {
		if keep[i] {
			result = append(result, contrib)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (c *Client) CheckMergeable(ctx context.Context, id string) (bool, error) {
	number, err := parseID(id)
	if err != nil {
		return false, err
	}
	// mergeability is computed lazily by the host; poll until it settles
	return retry(ctx, c, func() (bool, error) {
		pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
		if err != nil {
			return false, classify("check mergeable", id, err)
		}
		if pr.GetMerged() {
			return false, nil
		}
		if pr.GetState() != "open" {
			return false, fmt.Errorf("check mergeable %s: closed: %w", id, remote.ErrNotFound)
		}
		if pr.Mergeable == nil {
			return false, remote.Unavailable("check mergeable", id, errors.New("mergeability still being computed"))
		}
		return pr.GetMergeable(), nil
	})
}

func (c *Client) ApproveAndMerge(ctx context.Context, id string, strategy remote.MergeStrategy) (remote.MergeResult, error) {
	number, err := parseID(id)
	if err != nil {
		return remote.MergeResult{}, err
	}
	pr, err := c.getPR(ctx, number)
	if err != nil {
		return remote.MergeResult{}, err
	}

	if pr.GetMerged() {
		// a previous attempt landed; finish cleanup and report it
		return remote.MergeResult{
			ID:             id,
			CommitSHA:      pr.GetMergeCommitSHA(),
			MergedAt:       pr.GetMergedAt().UTC(),
			AlreadyMerged:  true,
			CleanupPending: !c.cleanup(ctx, id, pr),
		}, nil
	}
	if pr.GetState() != "open" {
		return remote.MergeResult{}, fmt.Errorf("merge %s: closed without merge: %w", id, remote.ErrNotFound)
	}
	if pr.Mergeable != nil && !pr.GetMergeable() {
		return remote.MergeResult{}, fmt.Errorf("merge %s: %w", id, remote.ErrConflict)
	}

	if err := c.approve(ctx, id, pr); err != nil {
		return remote.MergeResult{}, err
	}

	_, err = retry(ctx, c, func() (string, error) {
		res, _, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "", &gh.PullRequestOptions{MergeMethod: string(strategy)})
		if err == nil {
			if !res.GetMerged() {
				return "", backoff.Permanent(fmt.Errorf("merge %s: %w: %s", id, remote.ErrConflict, res.GetMessage()))
			}
			return res.GetSHA(), nil
		}
		err = classify("merge", id, err)
		if errors.Is(err, remote.ErrRemoteUnavailable) {
			// the merge may have landed before the response was lost
			if cur, _, gerr := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number); gerr == nil && cur.GetMerged() {
				return cur.GetMergeCommitSHA(), nil
			}
		}
		return "", err
	})
	if err != nil {
		return remote.MergeResult{}, err
	}

	merged, err := c.getPR(ctx, number)
	if err != nil {
		return remote.MergeResult{}, err
	}
	if !merged.GetMerged() {
		return remote.MergeResult{}, remote.Unavailable("merge", id, errors.New("merge not confirmed by host"))
	}
	c.log.Info("merged pull request", zap.String("contribution", id), zap.String("sha", merged.GetMergeCommitSHA()))
	return remote.MergeResult{
		ID:             id,
		CommitSHA:      merged.GetMergeCommitSHA(),
		MergedAt:       merged.GetMergedAt().UTC(),
		CleanupPending: !c.cleanup(ctx, id, merged),
	}, nil
}

func (c *Client) RequestChanges(ctx context.Context, id, message string) error {
	number, err := parseID(id)
	if err != nil {
		return err
	}
	_, _, err = c.gh.PullRequests.CreateReview(ctx, c.owner, c.repo, number, &gh.PullRequestReviewRequest{
		Body:  gh.String(message),
		Event: gh.String("REQUEST_CHANGES"),
	})
	return classify("request changes", id, err)
}

func (c *Client) Comment(ctx context.Context, id, message string) error {
	number, err := parseID(id)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &gh.IssueComment{Body: gh.String(message)})
	return classify("comment", id, err)
}

func (c *Client) getPR(ctx context.Context, number int) (*gh.PullRequest, error) {
	id := strconv.Itoa(number)
	return retry(ctx, c, func() (*gh.PullRequest, error) {
		pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
		if err != nil {
			return nil, classify("get", id, err)
		}
		return pr, nil
	})
}

// approve posts an approving review unless the authenticated user wrote the
// pull request (the host rejects self-approval) or already approved it.
func (c *Client) approve(ctx context.Context, id string, pr *gh.PullRequest) error {
	self := c.selfLogin(ctx)
	if self != "" && strings.EqualFold(self, pr.GetUser().GetLogin()) {
		return nil
	}
	if self != "" {
		reviews, _, err := c.gh.PullRequests.ListReviews(ctx, c.owner, c.repo, pr.GetNumber(), &gh.ListOptions{PerPage: 100})
		if err != nil {
			return classify("list reviews", id, err)
		}
		for _, r := range reviews {
			if strings.EqualFold(r.GetUser().GetLogin(), self) && r.GetState() == "APPROVED" {
				return nil
			}
		}
	}
	_, _, err := c.gh.PullRequests.CreateReview(ctx, c.owner, c.repo, pr.GetNumber(), &gh.PullRequestReviewRequest{
		Event: gh.String("APPROVE"),
	})
	return classify("approve", id, err)
}

func (c *Client) selfLogin(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self != "" {
		return c.self
	}
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		c.log.Debug("could not resolve authenticated user", zap.Error(err))
		return ""
	}
	c.self = u.GetLogin()
	return c.self
}

// deleteBranch removes the head branch when it lives in this repository.
// A branch that is already gone counts as cleaned up.
// cleanup deletes the head branch of a merged pull request. The merge has
// already landed, so a failure here is logged and never fails the merge.
func (c *Client) cleanup(ctx context.Context, id string, pr *gh.PullRequest) bool {
	if err := c.deleteBranch(ctx, id, pr); err != nil {
		c.log.Warn("merged but branch cleanup failed",
			zap.String("contribution", id), zap.String("branch", pr.GetHead().GetRef()), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) deleteBranch(ctx context.Context, id string, pr *gh.PullRequest) error {
	head := pr.GetHead()
	if head.GetRef() == "" || !strings.EqualFold(head.GetRepo().GetFullName(), c.owner+"/"+c.repo) {
		return nil
	}
	_, err := retry(ctx, c, func() (struct{}, error) {
		_, err := c.gh.Git.DeleteRef(ctx, c.owner, c.repo, "heads/"+head.GetRef())
		if err != nil {
			if s := statusOf(err); s == http.StatusNotFound || s == http.StatusUnprocessableEntity {
				return struct{}{}, nil
			}
			return struct{}{}, classify("delete branch", id, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *Client) toContribution(pr *gh.PullRequest) remote.Contribution {
	out := remote.Contribution{
		ID:        strconv.Itoa(pr.GetNumber()),
		Author:    pr.GetUser().GetLogin(),
		Title:     pr.GetTitle(),
		OpenedAt:  pr.GetCreatedAt().UTC(),
		Mergeable: pr.GetMergeable(),
		Branch:    pr.GetHead().GetRef(),
	}
	for _, l := range pr.Labels {
		name := strings.TrimSpace(l.GetName())
		if c.blockingLabel != "" && strings.EqualFold(name, c.blockingLabel) {
			out.Unblocks = true
		}
		if amount, ok := parseBounty(name, c.bountyPrefix); ok && amount > out.Bounty {
			out.Bounty = amount
		}
	}
	return out
}

// parseBounty reads labels like "bounty:100" or "bounty: $1,000".
func parseBounty(label, prefix string) (int64, bool) {
	if prefix == "" || !strings.HasPrefix(strings.ToLower(label), prefix) {
		return 0, false
	}
	raw := strings.TrimSpace(label[len(prefix):])
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("github: %q is not a pull request number: %w", id, remote.ErrNotFound)
	}
	return n, nil
}

// retry re-runs op while it fails with ErrRemoteUnavailable. Any other
// error stops immediately.
func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, remote.ErrRemoteUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxRetries+1))
}

var _ remote.Host = (*Client)(nil)
