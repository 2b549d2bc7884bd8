// Package tui asks the operator for review decisions and merge
// confirmations in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/review"
)

// ErrAborted is returned by Confirm when the operator stops the batch.
var ErrAborted = errors.New("tui: aborted by operator")

// Prompter runs one small bubbletea program per question.
type Prompter struct {
	In  io.Reader
	Out io.Writer
}

func (p *Prompter) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tui: %w", err)
	}
	return final, nil
}

// Decide implements review.Prompter.
func (p *Prompter) Decide(ctx context.Context, pr review.Prompt) (review.Decision, error) {
	final, err := p.run(ctx, newDecideModel(pr))
	if err != nil {
		return review.Decision{}, err
	}
	m := final.(*decideModel)
	if m.abandoned || !m.done {
		return review.Decision{}, review.ErrAbandoned
	}
	return m.decision, nil
}

// Confirm implements batch.Confirmer.
func (p *Prompter) Confirm(ctx context.Context, c remote.Contribution) (bool, error) {
	final, err := p.run(ctx, &confirmModel{c: c})
	if err != nil {
		return false, err
	}
	m := final.(*confirmModel)
	if m.aborted || !m.answered {
		return false, ErrAborted
	}
	return m.yes, nil
}
