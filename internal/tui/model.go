package tui

import (
	"context"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/usecases"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the wizard session the model drives.
type Controller interface {
	State() usecases.WizardState
	Changes() <-chan struct{}
	ShouldPromptForToken() bool
	SetServiceName(name string)
	SetTeamName(name string)
	SetGitURL(repoURL string)
	SetToken(token string)
	SetBranch(branch string)
	SetDomainPrefix(prefix string)
	SetHasBackend(enabled bool)
	SetHasFrontend(enabled bool)
	Next() error
	Previous()
	Deploy(ctx context.Context) (*domain.DeployResult, error)
}

type field int

const (
	fieldServiceName field = iota
	fieldTeamName
	fieldGitURL
	fieldToken
	fieldBranch
	fieldDomainPrefix
	fieldBackend
	fieldFrontend
)

func (f field) label() string {
	switch f {
	case fieldServiceName:
		return "Service name"
	case fieldTeamName:
		return "Team name"
	case fieldGitURL:
		return "Git repository URL"
	case fieldToken:
		return "Access token"
	case fieldBranch:
		return "Branch"
	case fieldDomainPrefix:
		return "Domain prefix"
	case fieldBackend:
		return "Backend"
	case fieldFrontend:
		return "Frontend"
	default:
		return ""
	}
}

var placeholders = map[field]string{
	fieldServiceName:  "my-service",
	fieldTeamName:     "platform",
	fieldGitURL:       "https://github.com/owner/repo",
	fieldToken:        "personal access token",
	fieldDomainPrefix: "my-service",
}

// changedMsg tells the model a repository resolution was applied.
type changedMsg struct{}

type deployedMsg struct {
	result *domain.DeployResult
	err    error
}

type Model struct {
	ctx       context.Context
	wizard    Controller
	inputs    map[field]*textinput.Model
	focused   field
	err       error
	result    *domain.DeployResult
	deploying bool
	quitting  bool
}

// New builds the wizard model. ctx bounds the deploy request.
func New(ctx context.Context, wizard Controller) Model {
	inputs := make(map[field]*textinput.Model, len(placeholders))
	for f, placeholder := range placeholders {
		in := textinput.New()
		in.Placeholder = placeholder
		in.Prompt = ""
		in.CharLimit = 256
		in.Width = 48
		inputs[f] = &in
	}
	inputs[fieldToken].EchoMode = textinput.EchoPassword
	inputs[fieldToken].EchoCharacter = '•'

	m := Model{
		ctx:     ctx,
		wizard:  wizard,
		inputs:  inputs,
		focused: fieldServiceName,
	}
	m.applyFocus()
	return m
}

// Result is the backend acknowledgement, nil until a deployment succeeded.
func (m Model) Result() *domain.DeployResult {
	return m.result
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.wizard.Changes()))
}

// fields lists the inputs of the current step in tab order.
func (m Model) fields() []field {
	switch m.wizard.State().Step {
	case usecases.StepBasicInfo:
		return []field{fieldServiceName, fieldTeamName}
	case usecases.StepGitSetup:
		fields := []field{fieldGitURL}
		if m.wizard.ShouldPromptForToken() {
			fields = append(fields, fieldToken)
		}
		return append(fields, fieldBranch, fieldDomainPrefix, fieldBackend, fieldFrontend)
	default:
		return nil
	}
}

func (m *Model) moveFocus(delta int) tea.Cmd {
	fields := m.fields()
	if len(fields) == 0 {
		return nil
	}
	index := 0
	for i, f := range fields {
		if f == m.focused {
			index = i
			break
		}
	}
	m.focused = fields[(index+delta+len(fields))%len(fields)]
	return m.applyFocus()
}

// resetFocus moves focus to the first input of the current step.
func (m *Model) resetFocus() tea.Cmd {
	if fields := m.fields(); len(fields) > 0 {
		m.focused = fields[0]
	}
	return m.applyFocus()
}

func (m *Model) applyFocus() tea.Cmd {
	for _, in := range m.inputs {
		in.Blur()
	}
	if in, ok := m.inputs[m.focused]; ok {
		return in.Focus()
	}
	return nil
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func deploy(ctx context.Context, wizard Controller) tea.Cmd {
	return func() tea.Msg {
		result, err := wizard.Deploy(ctx)
		return deployedMsg{result: result, err: err}
	}
}

// Run shows the wizard until the user deploys or quits. The result is nil when
// the user quit without deploying.
func Run(ctx context.Context, wizard Controller, opts ...tea.ProgramOption) (*domain.DeployResult, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)

	final, err := tea.NewProgram(New(ctx, wizard), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("wizard terminated: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.result, nil
	}
	return nil, nil
}
