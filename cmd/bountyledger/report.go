package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jask/bountyledger/internal/report"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		multiplier int64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show owed and paid totals",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.cfg.Report.BonusMultiplier
			if cmd.Flags().Changed("bonus-multiplier") {
				m = multiplier
			}
			if m <= 0 {
				return usageError{fmt.Errorf("--bonus-multiplier must be positive, got %d", m)}
			}
			ctx := cmd.Context()
			l, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer l.Close()
			entries, err := l.List(ctx)
			if err != nil {
				return err
			}
			rep, err := report.Generate(entries, m, time.Now())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.env.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(a.env.stdout, rep)
			return nil
		},
	}
	cmd.Flags().Int64Var(&multiplier, "bonus-multiplier", 0, "scale owed totals (default report.bonus_multiplier)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r report.Report) {
	fmt.Fprintf(w, "Owed:      %d (%d entries)\n", r.Owed, r.PendingCount)
	fmt.Fprintf(w, "Projected: %d (x%d)\n", r.ProjectedOwed, r.BonusMultiplier)
	fmt.Fprintf(w, "Paid:      %d (%d entries)\n", r.Paid, r.PaidCount)
	if r.OldestPending != nil {
		fmt.Fprintf(w, "Oldest unpaid merge: %s\n", r.OldestPending.Format(time.DateOnly))
	}
	if len(r.Authors) == 0 {
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("AUTHOR", "OWED", "PROJECTED", "PAID")
	for _, a := range r.Authors {
		t.Row(a.Author, strconv.FormatInt(a.Owed, 10), strconv.FormatInt(a.ProjectedOwed, 10), strconv.FormatInt(a.Paid, 10))
	}
	fmt.Fprintln(w, t.Render())
}
