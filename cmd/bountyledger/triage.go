package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/review"
	"github.com/jask/bountyledger/internal/state"
	"github.com/jask/bountyledger/internal/triage"
)

func newTriageCmd(a *app) *cobra.Command {
	var queueOnly bool
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Review open contributions in priority order",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			host, err := a.newHost()
			if err != nil {
				return err
			}
			deferrals, err := state.Load(a.cfg.Triage.StatePath)
			if err != nil {
				return err
			}
			policy := triage.Policy{HighValueThreshold: a.cfg.Triage.HighValueThreshold}

			if queueOnly {
				lctx, cancel := context.WithTimeout(ctx, a.cfg.Remote.RequestTimeout)
				open, err := host.ListOpen(lctx)
				err = remote.Classify(lctx, err)
				cancel()
				if err != nil {
					return fmt.Errorf("list open contributions: %w", err)
				}
				items, err := policy.Order(open, deferrals.IDs())
				if err != nil {
					return err
				}
				printQueue(a.env.stdout, items, time.Now())
				return nil
			}

			strategy, err := a.mergeStrategy()
			if err != nil {
				return err
			}
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			r := &review.Runner{
				Host:      host,
				Ledger:    l,
				Policy:    policy,
				Deferrals: deferrals,
				Prompter:  a.operator(),
				Options: review.Options{
					Strategy: strategy,
					Timeout:  a.cfg.Remote.RequestTimeout,
					Logger:   a.log,
				},
			}
			sum, err := r.Run(ctx)
			printReviewSummary(a.env.stdout, sum)
			return err
		},
	}
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "print the ordered queue without reviewing")
	return cmd
}

func printQueue(w io.Writer, items []triage.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No open contributions.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "PRIORITY", "BOUNTY", "AGE", "AUTHOR", "TITLE")
	for i, it := range items {
		prio := it.Priority.String()
		if it.Deferred {
			prio += " (deferred)"
		}
		t.Row(strconv.Itoa(i+1), it.ID, prio, strconv.FormatInt(it.Bounty, 10),
			it.Age(now).Truncate(time.Hour).String(), it.Author, it.Title)
	}
	fmt.Fprintln(w, t.Render())
}

func printReviewSummary(w io.Writer, sum review.Summary) {
	for _, r := range sum.Results {
		line := fmt.Sprintf("%-10s %-18s", r.ID, r.Outcome.State)
		if r.Outcome.Entry != nil {
			line += fmt.Sprintf(" owed %d", r.Outcome.Entry.Amount)
			if r.Outcome.AlreadyRecorded {
				line += " (already recorded)"
			}
		}
		if m := r.Outcome.Merge; m != nil && m.CleanupPending {
			line += " (branch not deleted)"
		}
		if r.Err != nil {
			line += " last error: " + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	if sum.Abandoned {
		fmt.Fprintln(w, "Stopped by operator.")
	}
	fmt.Fprintf(w, "%d reviewed: %d merged, %d recorded, %d changes requested, %d commented, %d skipped\n",
		len(sum.Results),
		sum.Count(review.StateMerged)+sum.Count(review.StateLedgerRecorded),
		sum.Count(review.StateLedgerRecorded),
		sum.Count(review.StateChangesRequested),
		sum.Count(review.StateCommented),
		sum.Count(review.StateSkipped))
}
