package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jask/bountyledger/internal/ledger"
)

func newMarkPaidCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-paid <id>",
		Short: "Record that the bounty for a contribution was paid",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, ids []string) error {
			ctx := cmd.Context()
			id := strings.TrimSpace(ids[0])
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			err = l.MarkPaid(ctx, id)
			if errors.Is(err, ledger.ErrNotFound) {
				if entries, lerr := l.List(ctx); lerr == nil {
					if s := ledger.Suggest(entries, id, 3); len(s) > 0 {
						return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(s, ", "))
					}
				}
				return err
			}
			if err != nil {
				return err
			}
			e, err := l.Get(ctx, id)
			if err != nil {
				return err
			}
			a.log.Sugar().Infow("marked paid", "contribution", id, "amount", e.Amount)
			fmt.Fprintf(a.env.stdout, "%s paid: %d to %s\n", id, e.Amount, e.Author)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer l.Close()

			var entries []ledger.Entry
			switch ledger.Status(strings.ToUpper(status)) {
			case "":
				entries, err = l.List(ctx)
			case ledger.StatusPending:
				entries, err = l.ListOwed(ctx)
			case ledger.StatusPaid:
				entries, err = l.ListPaid(ctx)
			default:
				return usageError{fmt.Errorf("--status must be pending or paid, got %q", status)}
			}
			if err != nil {
				return err
			}
			printEntries(a.env.stdout, entries)

			total, err := l.TotalOwed(ctx, a.cfg.Report.BonusMultiplier)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.env.stdout, "Total owed (x%d): %d\n", a.cfg.Report.BonusMultiplier, total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only pending or paid entries")
	return cmd
}

func printEntries(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No ledger entries.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "AUTHOR", "FEATURE", "AMOUNT", "MERGED", "STATUS")
	for _, e := range entries {
		t.Row(e.ContributionID, e.Author, e.Feature, strconv.FormatInt(e.Amount, 10), e.MergedAt.Format(time.DateOnly), string(e.Status))
	}
	fmt.Fprintln(w, t.Render())
}
