package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/bountyledger/internal/remote/fixture"
)

func newFixtureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Work with fixture host files for dry runs",
	}
	var (
		count int
		seed  int64
		out   string
	)
	sample := &cobra.Command{
		Use:   "sample",
		Short: "Write a generated set of open contributions as YAML",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return usageError{fmt.Errorf("--count must be positive")}
			}
			cs := fixture.Sample(count, seed, time.Now())
			if out == "" {
				return fixture.Encode(a.env.stdout, cs)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := fixture.Encode(f, cs); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	sample.Flags().IntVar(&count, "count", 12, "number of contributions")
	sample.Flags().Int64Var(&seed, "seed", 1, "generator seed")
	sample.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	cmd.AddCommand(sample)
	return cmd
}
