package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/bountyledger/internal/remote"
)

// confirmModel is a y/n question about one merge.
type confirmModel struct {
	c        remote.Contribution
	answered bool
	yes      bool
	aborted  bool
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.answered, m.yes = true, true
		return m, tea.Quit
	case "n", "N", "esc":
		m.answered = true
		return m, tea.Quit
	case "q", "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *confirmModel) View() string {
	if m.answered || m.aborted {
		return ""
	}
	return fmt.Sprintf("%s %s %s\n%s\n",
		titleStyle.Render("Merge"), m.c.ID, m.c.Title,
		subtleStyle.Render("y merge  n skip  q stop the batch"))
}
