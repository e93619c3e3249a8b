package tui

import (
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/usecases"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	state := m.wizard.State()

	var s strings.Builder
	s.WriteString(titleStyle.Render("Create a new service") + "\n\n")
	s.WriteString(renderSteps(state.Step) + "\n\n")

	switch state.Step {
	case usecases.StepBasicInfo, usecases.StepGitSetup:
		for _, f := range m.fields() {
			s.WriteString(m.renderField(f, state) + "\n")
		}
		if state.Step == usecases.StepGitSetup {
			s.WriteString("\n" + renderRepositoryStatus(state.Git) + "\n")
		}
	case usecases.StepSummary:
		s.WriteString(renderSummary(state) + "\n")
		if m.deploying {
			s.WriteString("\n" + infoStyle.Render("Deploying...") + "\n")
		}
	}

	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	s.WriteString("\n" + infoStyle.Render(helpText(state.Step)) + "\n")
	return appStyle.Render(s.String())
}

func renderSteps(current usecases.Step) string {
	steps := []usecases.Step{usecases.StepBasicInfo, usecases.StepGitSetup, usecases.StepSummary}

	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		text := fmt.Sprintf("%d %s", int(step), step)
		if step == current {
			parts = append(parts, currentStepStyle.Render(text))
			continue
		}
		parts = append(parts, stepStyle.Render(text))
	}
	return strings.Join(parts, stepStyle.Render(" › "))
}

func (m Model) renderField(f field, state usecases.WizardState) string {
	var value string
	switch f {
	case fieldBranch:
		value = fmt.Sprintf("‹ %s ›", state.Form.Branch)
		if n := len(state.Git.Branches); n > 1 {
			value += infoStyle.Render(fmt.Sprintf("  %d branches", n))
		}
	case fieldBackend:
		value = checkbox(state.Form.HasBackend)
	case fieldFrontend:
		value = checkbox(state.Form.HasFrontend)
	default:
		value = m.inputs[f].View()
	}

	line := labelStyle.Render(f.label()) + value
	if f == m.focused {
		return selectedItemStyle.Render("> ") + line
	}
	return itemStyle.Render(line)
}

func checkbox(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}

func renderRepositoryStatus(git usecases.GitSetupState) string {
	switch {
	case git.Resolving:
		return infoStyle.Render("Checking repository access...")
	case git.Err != nil:
		switch domain.ResolutionKindOf(git.Err) {
		case domain.KindNotFound, domain.KindUnauthorized:
			return warningStyle.Render("🔒 Repository not reachable without a token, it may be private. Enter an access token.")
		default:
			return errorStyle.Render(fmt.Sprintf("Could not check repository: %v", git.Err))
		}
	case git.IsPrivate:
		return warningStyle.Render(fmt.Sprintf("🔒 Private repository %s/%s", git.Owner, git.Repo))
	case git.Owner != "":
		return successStyle.Render(fmt.Sprintf("✓ Public repository %s/%s", git.Owner, git.Repo))
	default:
		return infoStyle.Render("Enter a GitHub or GitLab URL to load its branches.")
	}
}

func renderSummary(state usecases.WizardState) string {
	form := state.Form
	components := make([]string, 0, 2)
	if form.HasBackend {
		components = append(components, "backend")
	}
	if form.HasFrontend {
		components = append(components, "frontend")
	}

	visibility := "public"
	if state.Git.IsPrivate {
		visibility = "private"
	}

	rows := [][2]string{
		{"Service name", form.ServiceName},
		{"Team name", form.TeamName},
		{"Repository", fmt.Sprintf("%s (%s)", form.GitURL, visibility)},
		{"Branch", form.Branch},
		{"Domain prefix", form.DomainPrefix},
		{"Components", strings.Join(components, ", ")},
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(row[0])+row[1])
	}
	return summaryBorderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func helpText(step usecases.Step) string {
	switch step {
	case usecases.StepBasicInfo:
		return "tab/shift+tab move • enter next • esc quit"
	case usecases.StepGitSetup:
		return "tab/shift+tab move • ←/→ branch • space toggle • enter next • ctrl+b back • esc quit"
	default:
		return "enter deploy • ctrl+b back • esc quit"
	}
}
