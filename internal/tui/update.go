package tui

import (
	"deploy-wizard-cli/internal/usecases"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		var cmd tea.Cmd
		// a resolution can remove the focused token input
		if !slices.Contains(m.fields(), m.focused) {
			cmd = m.resetFocus()
		}
		return m, tea.Batch(cmd, waitForChange(m.wizard.Changes()))

	case deployedMsg:
		m.deploying = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.result = msg.result
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab", "down":
		return m, m.moveFocus(1)
	case "shift+tab", "up":
		return m, m.moveFocus(-1)
	case "ctrl+b":
		m.err = nil
		m.wizard.Previous()
		return m, m.resetFocus()
	case "enter":
		return m.submit()
	}

	switch m.focused {
	case fieldBranch:
		switch msg.String() {
		case "right", " ":
			m.cycleBranch(1)
		case "left":
			m.cycleBranch(-1)
		}
		return m, nil
	case fieldBackend, fieldFrontend:
		if msg.String() == " " {
			m.toggle(m.focused)
		}
		return m, nil
	}

	in, ok := m.inputs[m.focused]
	if !ok || !in.Focused() {
		return m, nil
	}

	before := in.Value()
	var cmd tea.Cmd
	*in, cmd = in.Update(msg)
	if in.Value() != before {
		m.store(m.focused, in.Value())
	}
	return m, cmd
}

// submit advances a step, or starts the deployment on the summary step.
func (m Model) submit() (tea.Model, tea.Cmd) {
	state := m.wizard.State()

	if state.Step == usecases.StepSummary {
		if m.deploying {
			return m, nil
		}
		m.deploying = true
		m.err = nil
		return m, deploy(m.ctx, m.wizard)
	}

	if err := m.wizard.Next(); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	return m, m.resetFocus()
}

func (m *Model) store(f field, value string) {
	switch f {
	case fieldServiceName:
		m.wizard.SetServiceName(value)
	case fieldTeamName:
		m.wizard.SetTeamName(value)
	case fieldGitURL:
		m.wizard.SetGitURL(value)
	case fieldToken:
		m.wizard.SetToken(value)
	case fieldDomainPrefix:
		m.wizard.SetDomainPrefix(value)
		m.inputs[f].SetValue(m.wizard.State().Form.DomainPrefix)
	}
}

func (m *Model) cycleBranch(delta int) {
	state := m.wizard.State()
	branches := state.Git.Branches
	if len(branches) == 0 {
		return
	}

	index := 0
	for i, branch := range branches {
		if branch == state.Form.Branch {
			index = i
			break
		}
	}
	m.wizard.SetBranch(branches[(index+delta+len(branches))%len(branches)])
}

func (m *Model) toggle(f field) {
	form := m.wizard.State().Form
	if f == fieldBackend {
		m.wizard.SetHasBackend(!form.HasBackend)
		return
	}
	m.wizard.SetHasFrontend(!form.HasFrontend)
}
