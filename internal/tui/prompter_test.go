package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/bountyledger/internal/remote"
	"github.com/jask/bountyledger/internal/review"
	"github.com/jask/bountyledger/internal/triage"
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func quits(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	require.Equal(t, tea.QuitMsg{}, cmd())
}

func prompt() review.Prompt {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return review.Prompt{
		Item: triage.Item{
			Contribution: remote.Contribution{ID: "1042", Author: "ana", Title: "Add CSV export", Bounty: 150, OpenedAt: opened},
			Priority:     triage.PriorityStandard,
		},
		Position:  2,
		Total:     5,
		Checklist: review.Checklist,
		Now:       opened.Add(72 * time.Hour),
	}
}

func TestDecideApproveAndSkip(t *testing.T) {
	m := newDecideModel(prompt())
	_, cmd := m.Update(runes("a"))
	quits(t, cmd)
	require.True(t, m.done)
	require.Equal(t, review.Decision{Kind: review.DecisionApprove}, m.decision)

	m = newDecideModel(prompt())
	_, cmd = m.Update(runes("s"))
	quits(t, cmd)
	require.Equal(t, review.DecisionSkip, m.decision.Kind)
}

func TestDecideCommentNeedsMessage(t *testing.T) {
	m := newDecideModel(prompt())
	m.Update(runes("c"))
	require.Equal(t, modeMessage, m.mode)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.False(t, m.done)
	require.Contains(t, m.View(), "message is required")

	m.Update(runes("please rebase"))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	quits(t, cmd)
	require.Equal(t, review.Decision{Kind: review.DecisionComment, Message: "please rebase"}, m.decision)
}

func TestDecideEscapeReturnsToChoices(t *testing.T) {
	m := newDecideModel(prompt())
	m.Update(runes("r"))
	require.Equal(t, review.DecisionRequestChanges, m.pending)
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, modeChoose, m.mode)
	require.False(t, m.abandoned)

	_, cmd := m.Update(runes("q"))
	quits(t, cmd)
	require.True(t, m.abandoned)
}

func TestDecideView(t *testing.T) {
	p := prompt()
	p.LastError = errors.New("merge 1042: remote: contribution not mergeable")
	view := newDecideModel(p).View()
	require.Contains(t, view, "Review 2/5")
	require.Contains(t, view, "1042")
	require.Contains(t, view, "Add CSV export")
	require.Contains(t, view, "bounty 150")
	require.Contains(t, view, "3d")
	require.Contains(t, view, "Adequate test coverage")
	require.Contains(t, view, "not mergeable")
}

func TestConfirm(t *testing.T) {
	m := &confirmModel{c: remote.Contribution{ID: "7", Title: "bump deps"}}
	require.Contains(t, m.View(), "bump deps")
	_, cmd := m.Update(runes("y"))
	quits(t, cmd)
	require.True(t, m.yes)

	m = &confirmModel{}
	_, cmd = m.Update(runes("n"))
	quits(t, cmd)
	require.True(t, m.answered)
	require.False(t, m.yes)

	m = &confirmModel{}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	quits(t, cmd)
	require.True(t, m.aborted)
}

func TestHumanAge(t *testing.T) {
	require.Equal(t, "5m", humanAge(5*time.Minute))
	require.Equal(t, "3h", humanAge(3*time.Hour))
	require.Equal(t, "4d", humanAge(100*time.Hour))
}
