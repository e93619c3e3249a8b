package usecases

import (
	"context"
	"deploy-wizard-cli/internal/debouncer"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/gate"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Step is a wizard page.
type Step int

const (
	StepBasicInfo Step = iota + 1
	StepGitSetup
	StepSummary
)

func (s Step) String() string {
	switch s {
	case StepBasicInfo:
		return "Basic Info"
	case StepGitSetup:
		return "Git Setup"
	case StepSummary:
		return "Summary & Deploy"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

var (
	// ErrDeployInProgress is returned when Deploy is called while a previous
	// submission has not finished.
	ErrDeployInProgress = errors.New("deployment already in progress")
	// ErrNotOnSummary is returned when Deploy is called before the summary step.
	ErrNotOnSummary = errors.New("deployment can only be started from the summary step")
	// ErrWizardClosed is returned once Close has been called.
	ErrWizardClosed = errors.New("wizard is closed")
	// ErrStillResolving is returned by Next on the Git setup step while the
	// repository's visibility is not known yet.
	ErrStillResolving = errors.New("repository access is still being checked")
)

// ValidationError blocks a step transition.
type ValidationError struct {
	Step    Step
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// WizardForm holds what the user typed.
type WizardForm struct {
	ServiceName       string `json:"service_name"`
	TeamName          string `json:"team_name"`
	GitURL            string `json:"git_url"`
	Token             string `json:"-"`
	Branch            string `json:"branch"`
	DomainPrefix      string `json:"domain_prefix"`
	HasBackend        bool   `json:"has_backend"`
	HasFrontend       bool   `json:"has_frontend"`
	BackendStack      string `json:"backend_stack,omitempty"`
	FrontendStack     string `json:"frontend_stack,omitempty"`
	UseRepoDockerfile bool   `json:"use_repo_dockerfile"`
}

// GitSetupState is the resolution outcome shown on the Git setup step.
type GitSetupState struct {
	// Resolving is true between an URL or token edit and its result.
	Resolving bool     `json:"resolving"`
	IsPrivate bool     `json:"is_private"`
	Owner     string   `json:"owner,omitempty"`
	Repo      string   `json:"repo,omitempty"`
	Branches  []string `json:"branches"`
	Err       error    `json:"-"`
}

// Info returns the state as repository info for the access gate.
func (g GitSetupState) Info() *domain.RepositoryInfo {
	return &domain.RepositoryInfo{IsPrivate: g.IsPrivate, Owner: g.Owner, Repo: g.Repo, Branches: g.Branches}
}

// WizardState is a snapshot of the whole wizard.
type WizardState struct {
	Step      Step          `json:"step"`
	Form      WizardForm    `json:"form"`
	Git       GitSetupState `json:"git"`
	Deploying bool          `json:"deploying"`
}

// WizardOptions configures a wizard session.
type WizardOptions struct {
	UserID        int
	Hosts         []string
	DebounceDelay time.Duration
}

// WizardUseCase drives the three-step service creation wizard. Setters may be
// called from any goroutine; resolution results are applied asynchronously.
type WizardUseCase struct {
	submitter domain.DeploySubmitter
	debouncer *debouncer.Debouncer
	userID    int
	logger    *zap.Logger

	// inputMu orders URL and token edits with their debouncer submissions.
	// Lock order: inputMu, then the debouncer, then mu.
	inputMu sync.Mutex
	mu      sync.Mutex
	state   WizardState
	closed  bool
	changes chan struct{}
}

// NewWizardUseCase creates a wizard session with dependency injection
func NewWizardUseCase(
	resolver domain.RepositoryInfoResolver,
	submitter domain.DeploySubmitter,
	opts WizardOptions,
	logger *zap.Logger,
) *WizardUseCase {
	uc := &WizardUseCase{
		submitter: submitter,
		userID:    opts.UserID,
		logger:    logger,
		changes:   make(chan struct{}, 1),
		state: WizardState{
			Step: StepBasicInfo,
			Form: WizardForm{
				Branch:     "main",
				HasBackend: true,
			},
			Git: GitSetupState{Branches: debouncer.BaselineBranches()},
		},
	}
	uc.debouncer = debouncer.New(resolver, opts.Hosts, opts.DebounceDelay, uc.applyResolution, logger)
	return uc
}

// State returns a copy of the current wizard state.
func (uc *WizardUseCase) State() WizardState {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	state := uc.state
	state.Git.Branches = append([]string(nil), uc.state.Git.Branches...)
	return state
}

// Changes signals after a resolution result was applied. Signals coalesce;
// receivers should re-read State.
func (uc *WizardUseCase) Changes() <-chan struct{} {
	return uc.changes
}

// WaitResolved blocks until no resolution is pending. It consumes the signals
// of Changes, so a session should use one or the other.
func (uc *WizardUseCase) WaitResolved(ctx context.Context) error {
	for {
		uc.mu.Lock()
		resolving, closed := uc.state.Git.Resolving, uc.closed
		uc.mu.Unlock()

		switch {
		case closed:
			return ErrWizardClosed
		case !resolving:
			return nil
		}

		select {
		case <-uc.changes:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ShouldPromptForToken reports whether the token input must be shown.
func (uc *WizardUseCase) ShouldPromptForToken() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return gate.ShouldPromptForToken(uc.state.Git.Info())
}

func (uc *WizardUseCase) SetServiceName(name string) {
	uc.update(func(f *WizardForm) { f.ServiceName = name })
}

func (uc *WizardUseCase) SetTeamName(name string) {
	uc.update(func(f *WizardForm) { f.TeamName = name })
}

func (uc *WizardUseCase) SetBranch(branch string) {
	uc.update(func(f *WizardForm) { f.Branch = branch })
}

// SetDomainPrefix stores the prefix lower-cased.
func (uc *WizardUseCase) SetDomainPrefix(prefix string) {
	uc.update(func(f *WizardForm) { f.DomainPrefix = strings.ToLower(prefix) })
}

func (uc *WizardUseCase) SetHasBackend(enabled bool) {
	uc.update(func(f *WizardForm) { f.HasBackend = enabled })
}

func (uc *WizardUseCase) SetHasFrontend(enabled bool) {
	uc.update(func(f *WizardForm) { f.HasFrontend = enabled })
}

func (uc *WizardUseCase) SetBackendStack(stack string) {
	uc.update(func(f *WizardForm) { f.BackendStack = stack })
}

func (uc *WizardUseCase) SetFrontendStack(stack string) {
	uc.update(func(f *WizardForm) { f.FrontendStack = stack })
}

func (uc *WizardUseCase) SetUseRepoDockerfile(enabled bool) {
	uc.update(func(f *WizardForm) { f.UseRepoDockerfile = enabled })
}

// SetGitURL stores the URL and schedules a debounced resolution.
func (uc *WizardUseCase) SetGitURL(repoURL string) {
	uc.updateRepository(func(f *WizardForm) { f.GitURL = repoURL })
}

// SetToken stores the access token and schedules a debounced resolution.
func (uc *WizardUseCase) SetToken(token string) {
	uc.updateRepository(func(f *WizardForm) { f.Token = token })
}

// Next validates the current step and advances.
func (uc *WizardUseCase) Next() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.closed {
		return ErrWizardClosed
	}
	if err := uc.validateStep(); err != nil {
		uc.logger.Debug("Step validation failed",
			zap.Stringer("step", uc.state.Step),
			zap.String("field", err.Field),
			zap.String("reason", err.Message))
		return err
	}
	if uc.state.Step < StepSummary {
		uc.state.Step++
	}
	return nil
}

// Previous goes back one step, never below the first.
func (uc *WizardUseCase) Previous() {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.state.Step > StepBasicInfo {
		uc.state.Step--
	}
}

// Deploy submits the form from the summary step. On failure the form and
// step are left as they were so the user can retry.
func (uc *WizardUseCase) Deploy(ctx context.Context) (*domain.DeployResult, error) {
	uc.mu.Lock()
	switch {
	case uc.closed:
		uc.mu.Unlock()
		return nil, ErrWizardClosed
	case uc.state.Step != StepSummary:
		uc.mu.Unlock()
		return nil, ErrNotOnSummary
	case uc.state.Deploying:
		uc.mu.Unlock()
		return nil, ErrDeployInProgress
	}
	uc.state.Deploying = true
	req := &domain.DeployRequest{
		UserID:       uc.userID,
		ServiceName:  strings.TrimSpace(uc.state.Form.ServiceName),
		DomainPrefix: strings.TrimSpace(uc.state.Form.DomainPrefix),
		GitRepoURL:   strings.TrimSpace(uc.state.Form.GitURL),
		GitBranch:    uc.state.Form.Branch,
	}
	uc.mu.Unlock()

	defer func() {
		uc.mu.Lock()
		uc.state.Deploying = false
		uc.mu.Unlock()
	}()

	uc.logger.Info("Starting deployment",
		zap.String("service", req.ServiceName),
		zap.String("repo", req.GitRepoURL),
		zap.String("branch", req.GitBranch),
		zap.String("domain", req.DomainPrefix))

	result, err := uc.submitter.AutoDeploy(ctx, req)
	if err != nil {
		uc.logger.Error("Deployment failed", zap.String("service", req.ServiceName), zap.Error(err))
		return nil, fmt.Errorf("deployment failed: %w", err)
	}

	uc.logger.Info("Deployment started", zap.String("service", req.ServiceName), zap.Int("status", result.StatusCode))
	return result, nil
}

// Close ends the session. Pending resolutions are dropped.
func (uc *WizardUseCase) Close() {
	uc.inputMu.Lock()
	defer uc.inputMu.Unlock()

	uc.debouncer.Close()

	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()
}

func (uc *WizardUseCase) update(apply func(*WizardForm)) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.closed {
		return
	}
	apply(&uc.state.Form)
}

func (uc *WizardUseCase) updateRepository(apply func(*WizardForm)) {
	uc.inputMu.Lock()
	defer uc.inputMu.Unlock()

	uc.mu.Lock()
	if uc.closed {
		uc.mu.Unlock()
		return
	}
	apply(&uc.state.Form)
	uc.state.Git.Resolving = true
	repoURL, token := uc.state.Form.GitURL, uc.state.Form.Token
	uc.mu.Unlock()

	uc.debouncer.Submit(repoURL, token)
}

// applyResolution runs on the debouncer's goroutine for the latest input only.
func (uc *WizardUseCase) applyResolution(result debouncer.Result) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.closed {
		return
	}

	outcome := result.Outcome()
	uc.state.Git = GitSetupState{
		IsPrivate: outcome.IsPrivate,
		Owner:     outcome.Owner,
		Repo:      outcome.Repo,
		Branches:  append([]string(nil), outcome.Branches...),
		Err:       result.Err,
	}
	uc.state.Form.Branch = gate.ReselectBranch(uc.state.Form.Branch, uc.state.Git.Branches)

	select {
	case uc.changes <- struct{}{}:
	default:
	}

	if result.Err != nil {
		uc.logger.Warn("Repository resolution failed",
			zap.String("repo_url", result.Input.URL),
			zap.String("kind", string(domain.ResolutionKindOf(result.Err))),
			zap.Error(result.Err))
		return
	}
	uc.logger.Debug("Applied repository resolution",
		zap.String("repo_url", result.Input.URL),
		zap.Bool("private", outcome.IsPrivate),
		zap.Bool("skipped", result.Skipped),
		zap.String("branch", uc.state.Form.Branch))
}

func (uc *WizardUseCase) validateStep() *ValidationError {
	form := uc.state.Form
	step := uc.state.Step

	switch step {
	case StepBasicInfo:
		if strings.TrimSpace(form.ServiceName) == "" {
			return &ValidationError{Step: step, Field: "service_name", Message: "service name is required"}
		}
		if strings.TrimSpace(form.TeamName) == "" {
			return &ValidationError{Step: step, Field: "team_name", Message: "team name is required"}
		}
	case StepGitSetup:
		switch {
		case strings.TrimSpace(form.GitURL) == "":
			return &ValidationError{Step: step, Field: "git_url", Message: "Git repository URL is required"}
		case strings.TrimSpace(form.Branch) == "":
			return &ValidationError{Step: step, Field: "branch", Message: "branch is required"}
		case strings.TrimSpace(form.DomainPrefix) == "":
			return &ValidationError{Step: step, Field: "domain_prefix", Message: "domain prefix is required"}
		case !form.HasBackend && !form.HasFrontend:
			return &ValidationError{Step: step, Field: "components", Message: "select backend or frontend"}
		}
		if uc.state.Git.Resolving {
			return &ValidationError{Step: step, Field: "git_url", Message: ErrStillResolving.Error(), Err: ErrStillResolving}
		}
		if err := gate.CheckTokenRequirement(uc.state.Git.Info(), form.Token); err != nil {
			return &ValidationError{Step: step, Field: "token", Message: err.Error(), Err: err}
		}
	}
	return nil
}
