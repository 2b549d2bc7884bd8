package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/bountyledger/internal/review"
)

type decideMode int

const (
	modeChoose decideMode = iota
	modeMessage
)

// decideModel asks for one review decision.
type decideModel struct {
	prompt  review.Prompt
	mode    decideMode
	pending review.DecisionKind
	input   textinput.Model
	status  string

	decision  review.Decision
	done      bool
	abandoned bool
}

func newDecideModel(p review.Prompt) *decideModel {
	inp := textinput.New()
	inp.Prompt = "msg> "
	inp.CharLimit = 4000
	inp.Width = 72
	return &decideModel{prompt: p, input: inp}
}

func (m *decideModel) Init() tea.Cmd { return nil }

func (m *decideModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.mode == modeMessage {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	if key.Type == tea.KeyCtrlC {
		m.abandoned = true
		return m, tea.Quit
	}
	if m.mode == modeMessage {
		return m.updateMessage(key)
	}

	switch key.String() {
	case "q", "esc":
		m.abandoned = true
		return m, tea.Quit
	case "a":
		return m.finish(review.Decision{Kind: review.DecisionApprove})
	case "s":
		return m.finish(review.Decision{Kind: review.DecisionSkip})
	case "r":
		return m.askMessage(review.DecisionRequestChanges, "What needs to change?")
	case "c":
		return m.askMessage(review.DecisionComment, "Comment")
	}
	return m, nil
}

func (m *decideModel) askMessage(kind review.DecisionKind, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = modeMessage
	m.pending = kind
	m.status = ""
	m.input.SetValue("")
	m.input.Placeholder = placeholder
	return m, m.input.Focus()
}

func (m *decideModel) updateMessage(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.mode = modeChoose
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		d := review.Decision{Kind: m.pending, Message: strings.TrimSpace(m.input.Value())}
		if err := d.Validate(); err != nil {
			m.status = "a message is required"
			return m, nil
		}
		return m.finish(d)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m *decideModel) finish(d review.Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.done = true
	return m, tea.Quit
}

func (m *decideModel) View() string {
	if m.done || m.abandoned {
		return ""
	}
	it := m.prompt.Item
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s\n", titleStyle.Render(fmt.Sprintf("Review %d/%d", m.prompt.Position, m.prompt.Total)), it.ID, priorityBadge(it.Priority.String()))
	fmt.Fprintf(&b, "%s\n", it.Title)
	bounty := "no bounty"
	if it.Bounty > 0 {
		bounty = fmt.Sprintf("bounty %d", it.Bounty)
	}
	fmt.Fprintf(&b, "%s\n", subtleStyle.Render(fmt.Sprintf("by %s, open %s, %s", it.Author, humanAge(it.Age(m.prompt.Now)), bounty)))
	if it.Deferred {
		b.WriteString(subtleStyle.Render("deferred from an earlier run") + "\n")
	}

	var list strings.Builder
	for _, item := range m.prompt.Checklist {
		fmt.Fprintf(&list, "[ ] %s\n", item)
	}
	b.WriteString(boxStyle.Render(strings.TrimRight(list.String(), "\n")) + "\n")

	if m.prompt.LastError != nil {
		b.WriteString(errorStyle.Render("last attempt failed: "+m.prompt.LastError.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status) + "\n")
	}
	if m.mode == modeMessage {
		b.WriteString(m.input.View() + "\n")
		b.WriteString(subtleStyle.Render("enter send  esc back") + "\n")
		return b.String()
	}
	b.WriteString(subtleStyle.Render("a approve+merge  r request changes  c comment  s skip  q quit") + "\n")
	return b.String()
}

func humanAge(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
