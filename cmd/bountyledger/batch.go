package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jask/bountyledger/internal/batch"
	"github.com/jask/bountyledger/internal/remote"
)

type confirmAll struct{}

func (confirmAll) Confirm(context.Context, remote.Contribution) (bool, error) { return true, nil }

func newBatchMergeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "batch-merge <id>...",
		Short: "Merge listed contributions that carry no bounty",
		Args:  args(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, ids []string) error {
			host, err := a.newHost()
			if err != nil {
				return err
			}
			strategy, err := a.mergeStrategy()
			if err != nil {
				return err
			}
			var confirmer batch.Confirmer = a.operator()
			if yes {
				confirmer = confirmAll{}
			}
			r := &batch.Runner{
				Host:      host,
				Confirmer: confirmer,
				Strategy:  strategy,
				Timeout:   a.cfg.Remote.RequestTimeout,
				Logger:    a.log,
			}
			sum, err := r.Run(cmd.Context(), ids)
			printBatchSummary(a.env.stdout, sum)
			if err != nil {
				return err
			}
			if n := sum.Failed(); n > 0 {
				return fmt.Errorf("%d of %d merges failed", n, len(sum.Results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "merge without asking")
	return cmd
}

func printBatchSummary(w io.Writer, sum batch.Summary) {
	for _, r := range sum.Results {
		line := fmt.Sprintf("%-10s %-8s", r.ID, r.Status)
		switch {
		case r.Reason != "":
			line += " " + r.Reason
		case r.Err != nil:
			line += " " + r.Err.Error()
		case r.Merge != nil && r.Merge.CommitSHA != "":
			line += " " + r.Merge.CommitSHA
		}
		if r.Merge != nil && r.Merge.CleanupPending {
			line += " (branch not deleted)"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d merged, %d skipped, %d failed\n", sum.Merged(), sum.Skipped(), sum.Failed())
}
