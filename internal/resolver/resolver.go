package resolver

import (
	"context"
	"deploy-wizard-cli/internal/classifier"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/parser"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultPerPage = 100
	defaultTimeout = 15 * time.Second
)

// Route sends repositories whose host contains Host to Provider.
type Route struct {
	Host     string
	Provider domain.HostingProvider
}

type Options struct {
	PerPage int
	// Timeout bounds one whole resolution (metadata and branch lookups).
	Timeout time.Duration
	// RatePerSecond and Burst throttle hosting API calls; zero disables throttling.
	RatePerSecond float64
	Burst         int
}

// Resolver resolves Git URLs into repository visibility and branches
type Resolver struct {
	routes  []Route
	limiter *rate.Limiter
	perPage int
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver creates a resolver. The first route also serves hosts that
// match no route.
func NewResolver(routes []Route, opts Options, logger *zap.Logger) (*Resolver, error) {
	if len(routes) == 0 {
		return nil, errors.New("at least one hosting provider route is required")
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Resolver{
		routes:  routes,
		limiter: limiter,
		perPage: perPage,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Resolve parses repoURL, looks up the repository and its branches.
// Only the repository lookup can fail the resolution; a failed branch
// lookup degrades to the default branch alone.
func (r *Resolver) Resolve(ctx context.Context, repoURL, token string) (*domain.RepositoryInfo, error) {
	ref, err := parser.Parse(repoURL)
	if err != nil {
		r.logger.Debug("Rejected repository URL", zap.String("repo_url", repoURL))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	provider := r.providerFor(ref.Host)

	if err := r.wait(ctx); err != nil {
		return nil, classifier.ClassifyNetwork(err)
	}
	metadata, err := provider.GetRepository(ctx, ref, token)
	if err != nil {
		return nil, asResolutionError(err)
	}

	branches := OrderBranches(metadata.DefaultBranch, nil)
	listed, err := r.listBranches(ctx, provider, ref, token)
	if err != nil {
		r.logger.Warn("Failed to fetch branches, falling back to default branch",
			zap.String("owner", ref.Owner),
			zap.String("repo", ref.Repo),
			zap.String("default_branch", metadata.DefaultBranch),
			zap.Error(err))
	} else {
		branches = OrderBranches(metadata.DefaultBranch, listed)
	}

	info := &domain.RepositoryInfo{
		IsPrivate: metadata.IsPrivate,
		Owner:     ref.Owner,
		Repo:      ref.Repo,
		Branches:  branches,
	}

	r.logger.Debug("Resolved repository",
		zap.String("owner", info.Owner),
		zap.String("repo", info.Repo),
		zap.Bool("private", info.IsPrivate),
		zap.Strings("branches", info.Branches))

	return info, nil
}

func (r *Resolver) listBranches(
	ctx context.Context,
	provider domain.HostingProvider,
	ref domain.RepositoryReference,
	token string,
) ([]string, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return provider.ListBranches(ctx, ref, token, r.perPage)
}

func (r *Resolver) providerFor(host string) domain.HostingProvider {
	for _, route := range r.routes {
		if route.Host != "" && strings.Contains(host, strings.ToLower(route.Host)) {
			return route.Provider
		}
	}
	return r.routes[0].Provider
}

func (r *Resolver) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// OrderBranches puts defaultBranch first and drops duplicates, keeping the
// provider order of the remaining branches.
func OrderBranches(defaultBranch string, branches []string) []string {
	ordered := make([]string, 0, len(branches)+1)
	seen := make(map[string]bool, len(branches)+1)

	if defaultBranch != "" {
		ordered = append(ordered, defaultBranch)
		seen[defaultBranch] = true
	}
	for _, branch := range branches {
		if branch == "" || seen[branch] {
			continue
		}
		seen[branch] = true
		ordered = append(ordered, branch)
	}
	return ordered
}

func asResolutionError(err error) error {
	var resErr *domain.ResolutionError
	if errors.As(err, &resErr) {
		return resErr
	}
	return classifier.ClassifyNetwork(err)
}
