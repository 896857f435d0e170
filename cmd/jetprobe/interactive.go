package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/config"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	symbolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	missingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateEditVersion
)

type opRow struct {
	op     dispatch.Operation
	bound  string
	whatIf string
}

type interactiveModel struct {
	err      error
	cfg      *config.Config
	rt       *runtime.Runtime
	caps     capability.Set
	whatIf   *capability.Set
	input    textinput.Model
	rows     []opRow
	selected int
	state    modelState
}

type loadedMsg struct {
	err error
	rt  *runtime.Runtime
}

func newInteractiveModel(cfg *config.Config) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "8.1 or 0x81000000"
	ti.Prompt = "compare with version: "
	ti.Width = 24
	return &interactiveModel{cfg: cfg, input: ti, state: stateBrowse}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	rt, err := open(context.Background(), m.cfg)
	return loadedMsg{rt: rt, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEditVersion {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if m.rt != nil {
				_ = m.rt.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "v", "/":
			m.state = stateEditVersion
			m.err = nil
			return m, m.input.Focus()

		case "esc":
			m.whatIf = nil
			m.refresh()
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.caps = msg.rt.Capabilities()
		m.refresh()
	}
	return m, nil
}

func (m *interactiveModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.rt != nil {
			_ = m.rt.Close(context.Background())
		}
		return m, tea.Quit

	case "esc":
		m.input.Blur()
		m.state = stateBrowse
		return m, nil

	case "enter":
		v, err := capability.ParseVersion(m.input.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		s := capability.Detect(v)
		m.whatIf = &s
		m.err = nil
		m.input.Blur()
		m.state = stateBrowse
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh recomputes every row: the symbol bound on the loaded build and,
// when a comparison version is set, the symbol that version would select.
func (m *interactiveModel) refresh() {
	m.rows = m.rows[:0]
	for _, s := range dispatch.Catalog {
		row := opRow{op: s.Op}
		if v, err := m.rt.Variant(s.Op); err == nil {
			row.bound = v.Symbol
		}
		if m.whatIf != nil {
			if v, err := dispatch.Select(s.Op, *m.whatIf); err == nil {
				row.whatIf = v.Symbol
			}
		}
		m.rows = append(m.rows, row)
	}
}

func (m *interactiveModel) View() string {
	if m.rt == nil {
		if m.err != nil {
			return missingStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Loading engine..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("JET Probe"))
	b.WriteString(" ")
	b.WriteString(m.caps.Version().String())
	b.WriteString(" (" + m.cfg.Backend + ")")
	if m.whatIf != nil {
		b.WriteString(" vs " + m.whatIf.Version().String())
	}
	b.WriteString("\n\n")

	for i, r := range m.rows {
		line := fmt.Sprintf("%-20s %s", r.op, m.symbol(r.bound))
		if m.whatIf != nil {
			line += "  " + m.symbol(r.whatIf)
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + fmt.Sprintf("%-20s", r.op)))
			b.WriteString(strings.TrimPrefix(line, fmt.Sprintf("%-20s", r.op)))
		} else {
			b.WriteString("  " + opStyle.Render(line))
		}
		b.WriteString("\n")
	}

	if len(m.rows) > 0 {
		b.WriteString("\n")
		b.WriteString(m.variants(m.rows[m.selected].op))
	}

	b.WriteString("\n")
	if m.state == stateEditVersion {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(missingStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	switch m.state {
	case stateBrowse:
		b.WriteString(helpStyle.Render("↑/↓ select • v compare version • esc clear • q quit"))
	case stateEditVersion:
		b.WriteString(helpStyle.Render("enter apply • esc back"))
	}
	return b.String()
}

func (m *interactiveModel) symbol(s string) string {
	if s == "" {
		return missingStyle.Render(fmt.Sprintf("%-24s", "unavailable"))
	}
	return symbolStyle.Render(fmt.Sprintf("%-24s", s))
}

// variants lists the ranked variants of op with their requirements.
func (m *interactiveModel) variants(op dispatch.Operation) string {
	s, ok := dispatch.Lookup(op)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, v := range s.Variants {
		var req []string
		for _, f := range v.Requires {
			req = append(req, f.String())
		}
		mark := " "
		if v.Supported(m.caps) {
			mark = "x"
		}
		fmt.Fprintf(&b, "  [%s] %-24s %s\n", mark, v.Symbol, helpStyle.Render(strings.Join(req, ", ")))
	}
	return b.String()
}

func runInteractive(cfg *config.Config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
