package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/bountyledger/internal/batch"
	"github.com/jask/bountyledger/internal/config"
	"github.com/jask/bountyledger/internal/logging"
	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/review"
	"github.com/jask/bountyledger/internal/tui"
)

// operator is what the interactive commands ask.
type operator interface {
	review.Prompter
	batch.Confirmer
}

// env is the process surroundings; tests replace it.
type env struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	operator       func() operator
	host           func() remote.Host
	secretsDir     func() (string, error)
}

func defaultEnv() *env {
	return &env{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// app is what every subcommand runs against, filled in before it runs.
type app struct {
	env *env
	cfg config.Config
	log *zap.Logger

	configPath string
	logLevel   string
}

func newRootCmd(e *env) *cobra.Command {
	a := &app{env: e}
	root := &cobra.Command{
		Use:           "bountyledger",
		Short:         "Triage contributions, merge them and keep the bounty ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetIn(e.stdin)
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $BOUNTYLEDGER_CONFIG or ~/.config/bountyledger/config.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newTriageCmd(a),
		newBatchMergeCmd(a),
		newReportCmd(a),
		newMarkPaidCmd(a),
		newListCmd(a),
		newTokenCmd(a),
		newFixtureCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) operator() operator {
	if a.env.operator != nil {
		return a.env.operator()
	}
	return &tui.Prompter{In: a.env.stdin, Out: a.env.stdout}
}

// args wraps a cobra validator so bad arguments exit with the usage code.
func args(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := v(cmd, a); err != nil {
			return usageError{err}
		}
		return nil
	}
}
