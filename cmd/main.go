package main

import (
	"context"
	"deploy-wizard-cli/internal/config"
	"deploy-wizard-cli/internal/deploy"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/gate"
	"deploy-wizard-cli/internal/generator"
	"deploy-wizard-cli/internal/github"
	"deploy-wizard-cli/internal/gitlab"
	"deploy-wizard-cli/internal/logger"
	"deploy-wizard-cli/internal/parser"
	"deploy-wizard-cli/internal/resolver"
	"deploy-wizard-cli/internal/scanner"
	"deploy-wizard-cli/internal/tui"
	"deploy-wizard-cli/internal/usecases"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile string
	debug      bool
}

// newRootCmd represents the base command when called without any subcommands
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "deploy-wizard",
		Short: "Deploy Wizard CLI - Create services from Git repositories and follow their deployments",
		Long: `A command-line tool that turns a GitHub or GitLab repository into a deployed
service. It checks repository visibility and branches through the hosting APIs,
asks for an access token when the repository is private, submits the service to
the deploy backend and reports deployment history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"Path to configuration file (default ~/"+config.DefaultConfigName+" when present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging with verbose output")
	rootCmd.PersistentFlags().String("api-base", "", "Deploy backend base URL (overrides config)")
	rootCmd.PersistentFlags().Int("user-id", 0, "User id sent with deployments (overrides config)")
	rootCmd.PersistentFlags().Int("timeout", 0, "HTTP timeout in seconds (overrides config)")

	rootCmd.AddCommand(
		newResolveCmd(opts),
		newDeployCmd(opts),
		newDetectCmd(opts),
		newBuildCmd(opts),
		newHistoryCmd(opts),
		newWizardCmd(opts),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app holds the components wired from configuration
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	resolver *resolver.Resolver
	scanner  domain.StackDetector
	backend  *deploy.Client
}

func setup(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	configPath := opts.configFile
	if configPath == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				configPath = path
			}
		}
	}

	// Load configuration
	cfg, err := config.LoadConfigWithFlags(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set debug level if debug flag is enabled
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		level = zap.DebugLevel
	}
	logger.SetLevel(level)

	l := logger.GetLogger()

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.HTTPTimeout()

	// Initialize hosting clients
	githubClient, err := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, httpClient, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	gitlabClient, err := gitlab.NewClient(cfg.GitLab.BaseURL, cfg.GitLab.Token, httpClient, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	// Initialize resolver, GitHub first so it also serves unknown hosts
	repoResolver, err := resolver.NewResolver(
		[]resolver.Route{
			{Host: cfg.GitHub.Host, Provider: githubClient},
			{Host: cfg.GitLab.Host, Provider: gitlabClient},
		},
		resolver.Options{
			PerPage:       cfg.Resolution.PerPage,
			Timeout:       cfg.HTTPTimeout(),
			RatePerSecond: cfg.Resolution.RatePerSecond,
			Burst:         cfg.Resolution.Burst,
		},
		l,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository resolver: %w", err)
	}

	stackScanner, err := scanner.NewScanner(
		[]scanner.Route{
			{Host: cfg.GitHub.Host, Browser: githubClient},
			{Host: cfg.GitLab.Host, Browser: gitlabClient},
		},
		l,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stack scanner: %w", err)
	}

	// Initialize deploy backend client
	backend, err := deploy.NewClient(cfg.Backend.BaseURL, httpClient, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create deploy client: %w", err)
	}

	l.Debug("Configuration loaded",
		zap.String("config", configPath),
		zap.String("backend", backend.BaseURL()),
		zap.Int("user_id", cfg.Backend.UserID),
		zap.Strings("hosts", cfg.Hosts()))

	return &app{cfg: cfg, logger: l, resolver: repoResolver, scanner: stackScanner, backend: backend}, nil
}

func (a *app) newWizard(debounce time.Duration) *usecases.WizardUseCase {
	return usecases.NewWizardUseCase(a.resolver, a.backend, usecases.WizardOptions{
		UserID:        a.cfg.Backend.UserID,
		Hosts:         a.cfg.Hosts(),
		DebounceDelay: debounce,
	}, a.logger)
}

func newResolveCmd(opts *globalOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "resolve <git-url>",
		Short: "Show visibility and branches of a Git repository",
		Long: `Look up a GitHub or GitLab repository and print its visibility and branches
as JSON, default branch first. Exits non-zero when the repository cannot be
resolved, e.g. because it is private and no token was given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			info, err := a.resolver.Resolve(cmd.Context(), args[0], token)
			if err != nil {
				if kind := domain.ResolutionKindOf(err); kind != "" {
					return fmt.Errorf("failed to resolve repository (%s): %w", kind, err)
				}
				return fmt.Errorf("failed to resolve repository: %w", err)
			}

			return writeJSON(cmd.OutOrStdout(), struct {
				*domain.RepositoryInfo
				DefaultBranch string `json:"default_branch"`
				TokenRequired bool   `json:"token_required"`
			}{
				RepositoryInfo: info,
				DefaultBranch:  info.DefaultBranch(),
				TokenRequired:  gate.ShouldPromptForToken(info),
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Access token for private repositories (overrides config)")
	return cmd
}

type deployOptions struct {
	name     string
	team     string
	gitURL   string
	token    string
	branch   string
	domain   string
	backend  bool
	frontend bool
}

func newDeployCmd(opts *globalOptions) *cobra.Command {
	do := &deployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create a service from a Git repository without the interactive wizard",
		Long: `Fill the service creation wizard from flags, check the repository the same
way the interactive wizard does and submit the service to the deploy backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, opts, do)
		},
	}

	cmd.Flags().StringVarP(&do.name, "name", "n", "", "Service name")
	cmd.Flags().StringVar(&do.team, "team", "", "Team name")
	cmd.Flags().StringVarP(&do.gitURL, "url", "u", "", "Git repository URL")
	cmd.Flags().StringVarP(&do.token, "token", "t", "", "Access token for private repositories")
	cmd.Flags().StringVarP(&do.branch, "branch", "b", "", "Branch to deploy (default: repository default branch)")
	cmd.Flags().StringVar(&do.domain, "domain", "", "Domain prefix")
	cmd.Flags().BoolVar(&do.backend, "backend", true, "Deploy a backend component")
	cmd.Flags().BoolVar(&do.frontend, "frontend", false, "Deploy a frontend component")

	for _, name := range []string{"name", "team", "url", "domain"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
	return cmd
}

func runDeploy(cmd *cobra.Command, opts *globalOptions, do *deployOptions) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	a, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	// flags arrive all at once, nothing to debounce
	wizard := a.newWizard(time.Millisecond)
	defer wizard.Close()

	wizard.SetServiceName(do.name)
	wizard.SetTeamName(do.team)
	if err := wizard.Next(); err != nil {
		return err
	}

	fmt.Fprintf(out, "🔍 Checking %s...\n", do.gitURL)
	wizard.SetGitURL(do.gitURL)
	token := do.token
	if token == "" {
		if ref, err := parser.Parse(do.gitURL); err == nil {
			token = a.cfg.TokenFor(ref.Host)
		}
	}
	if token != "" {
		wizard.SetToken(token)
	}
	wizard.SetDomainPrefix(do.domain)
	wizard.SetHasBackend(do.backend)
	wizard.SetHasFrontend(do.frontend)

	if err := wizard.WaitResolved(ctx); err != nil {
		return fmt.Errorf("failed to check repository: %w", err)
	}

	state := wizard.State()
	if state.Git.Err != nil {
		fmt.Fprintf(out, "⚠️  Could not verify repository: %v\n", state.Git.Err)
	}
	if do.branch != "" {
		if !slices.Contains(state.Git.Branches, do.branch) {
			return fmt.Errorf("branch %q not found, available: %s", do.branch, strings.Join(state.Git.Branches, ", "))
		}
		wizard.SetBranch(do.branch)
	}

	if err := wizard.Next(); err != nil {
		if errors.Is(err, gate.ErrTokenRequired) {
			return fmt.Errorf("%w: pass --token", err)
		}
		return err
	}

	state = wizard.State()
	fmt.Fprintf(out, "📦 Deploying %s from %s@%s to %s\n",
		state.Form.ServiceName, state.Form.GitURL, state.Form.Branch, state.Form.DomainPrefix)

	result, err := wizard.Deploy(ctx)
	if err != nil {
		return err
	}

	printDeployResult(out, result)
	return nil
}

type buildOptions struct {
	prefix            string
	gitURL            string
	branch            string
	useRepoDockerfile bool
	frontendStack     string
	token             string
	detect            bool
}

func newBuildCmd(opts *globalOptions) *cobra.Command {
	bo := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Trigger a pipeline build through the deploy endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			req := &domain.BuildRequest{
				Prefix:            strings.ToLower(strings.TrimSpace(bo.prefix)),
				GitRepo:           strings.TrimSpace(bo.gitURL),
				Branch:            bo.branch,
				UseRepoDockerfile: bo.useRepoDockerfile,
				FrontendStack:     bo.frontendStack,
			}

			if bo.detect {
				if err := applyDetection(cmd, a, bo, req); err != nil {
					return err
				}
			}

			a.logger.Info("Triggering build",
				zap.String("prefix", req.Prefix),
				zap.String("repo", req.GitRepo),
				zap.String("branch", req.Branch),
				zap.Bool("use_repo_dockerfile", req.UseRepoDockerfile),
				zap.String("frontend_stack", req.FrontendStack))

			result, err := a.backend.PostDeploy(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			printDeployResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bo.prefix, "prefix", "p", "", "Domain prefix of the service")
	cmd.Flags().StringVarP(&bo.gitURL, "url", "u", "", "Git repository URL")
	cmd.Flags().StringVarP(&bo.branch, "branch", "b", "main", "Branch to build")
	cmd.Flags().BoolVar(&bo.useRepoDockerfile, "repo-dockerfile", false, "Build with the repository's own Dockerfile")
	cmd.Flags().StringVar(&bo.frontendStack, "frontend-stack", "", "Frontend stack, e.g. react-vite")
	cmd.Flags().BoolVar(&bo.detect, "detect", false,
		"Detect Dockerfile and frontend stack from the repository unless given explicitly")
	cmd.Flags().StringVarP(&bo.token, "token", "t", "", "Access token used by --detect (overrides config)")

	for _, name := range []string{"prefix", "url"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
	return cmd
}

// applyDetection fills the build options the user left unset from the stack
// found in the repository.
func applyDetection(cmd *cobra.Command, a *app, bo *buildOptions, req *domain.BuildRequest) error {
	detection, err := a.detect(cmd.Context(), req.GitRepo, bo.token, req.Branch)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("repo-dockerfile") {
		req.UseRepoDockerfile = detection.HasDockerfile
	}
	if !cmd.Flags().Changed("frontend-stack") {
		req.FrontendStack = detection.FrontendStack
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "🔍 Detected: dockerfile=%t backend=%q frontend=%q\n",
		detection.HasDockerfile, detection.BackendStack, detection.FrontendStack)
	return nil
}

// detect runs the stack scanner with the flag token, falling back to the
// configured token of the repository's host.
func (a *app) detect(ctx context.Context, gitURL, token, ref string) (*domain.StackDetection, error) {
	if token == "" {
		if parsed, err := parser.Parse(gitURL); err == nil {
			token = a.cfg.TokenFor(parsed.Host)
		}
	}

	detection, err := a.scanner.Detect(ctx, gitURL, token, ref)
	if err != nil {
		if kind := domain.ResolutionKindOf(err); kind != "" {
			return nil, fmt.Errorf("failed to detect stack (%s): %w", kind, err)
		}
		return nil, fmt.Errorf("failed to detect stack: %w", err)
	}
	return detection, nil
}

func newDetectCmd(opts *globalOptions) *cobra.Command {
	var token, branch string

	cmd := &cobra.Command{
		Use:   "detect <git-url>",
		Short: "Detect Dockerfiles and build stacks of a Git repository",
		Long: `Walk the file tree of a GitHub or GitLab repository and print as JSON which
Dockerfiles it carries and which backend and frontend stacks its dependency
files point to. Monorepos report one entry per project directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			detection, err := a.detect(cmd.Context(), args[0], token, branch)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), detection)
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Access token for private repositories (overrides config)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch or commit to inspect (default HEAD)")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		serviceID  int
		userID     int
		format     string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show deployment history",
		Long: `Show the deployment history of one service (--service), or the latest
deployment of every service owned by a user (--user, default: configured user).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			reportGenerator := generator.NewGenerator(outputFile, cmd.OutOrStdout())
			historyUseCase := usecases.NewHistoryUseCase(a.backend, reportGenerator, a.logger)

			var response *usecases.HistoryResponse
			if serviceID > 0 {
				response, err = historyUseCase.ServiceHistory(cmd.Context(), serviceID, format)
			} else {
				if userID <= 0 {
					userID = a.cfg.Backend.UserID
				}
				response, err = historyUseCase.UserLatest(cmd.Context(), userID, format)
			}
			if err != nil {
				return fmt.Errorf("failed to load deployment history: %w", err)
			}

			a.logger.Info("History completed successfully", zap.Any("response", response))

			// Summary goes to stderr so JSON and CSV output stay parseable
			summary := cmd.ErrOrStderr()
			fmt.Fprintf(summary, "📈 Summary:\n")
			fmt.Fprintf(summary, "  • Services: %d\n", response.TotalServices)
			fmt.Fprintf(summary, "  • Deployments: %d\n", response.TotalDeployments)
			if response.FailedServices > 0 {
				fmt.Fprintf(summary, "  • Failed lookups: %d\n", response.FailedServices)
			}
			if outputFile != "" {
				fmt.Fprintf(summary, "  • Written to: %s\n", reportGenerator.OutputPath())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&serviceID, "service", "s", 0, "Service id")
	cmd.Flags().IntVar(&userID, "user", 0, "User id (default: configured user)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or csv")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("service", "user")
	return cmd
}

func newWizardCmd(opts *globalOptions) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Create a service with the interactive wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			// Logs would tear the terminal UI apart
			logger.SetOutput(io.Discard)
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer f.Close()
				logger.SetOutput(f)
			}
			defer logger.SetOutput(os.Stderr)

			wizard := a.newWizard(a.cfg.DebounceDelay())
			defer wizard.Close()

			result, err := tui.Run(cmd.Context(), wizard)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result == nil {
				fmt.Fprintln(out, "👋 Wizard closed without deploying")
				return nil
			}
			printDeployResult(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file while the wizard runs")
	return cmd
}

func printDeployResult(out io.Writer, result *domain.DeployResult) {
	fmt.Fprintln(out, "\n🚀 Deployment submitted successfully!")
	fmt.Fprintf(out, "  • Endpoint: %s\n", result.URL)
	fmt.Fprintf(out, "  • Status: %d\n", result.StatusCode)
	if len(result.Body) > 0 {
		fmt.Fprintf(out, "  • Response: %s\n", result.Body)
	}
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
