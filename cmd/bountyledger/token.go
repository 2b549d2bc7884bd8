package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored remote host tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <host>",
		Short: "Store a token read from stdin",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, hosts []string) error {
			sc := bufio.NewScanner(a.env.stdin)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return usageError{fmt.Errorf("no token on stdin")}
			}
			store, err := a.secrets()
			if err != nil {
				return err
			}
			if err := store.Set(cmd.Context(), hosts[0], strings.TrimSpace(sc.Text())); err != nil {
				return err
			}
			fmt.Fprintf(a.env.stdout, "token stored for %s\n", hosts[0])
			return nil
		},
	}, &cobra.Command{
		Use:   "clear <host>",
		Short: "Remove a stored token",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, hosts []string) error {
			store, err := a.secrets()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), hosts[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.env.stdout, "token cleared for %s\n", hosts[0])
			return nil
		},
	})
	return cmd
}
