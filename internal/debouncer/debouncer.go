package debouncer

import (
	"context"
	"deploy-wizard-cli/internal/domain"
	"deploy-wizard-cli/internal/parser"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the settling window after the last edit.
const DefaultDelay = 500 * time.Millisecond

// Input is one (url, token) pair as typed by the user.
type Input struct {
	URL   string
	Token string
}

// Result is handed to the apply function for the latest input only.
type Result struct {
	Input Input
	Info  *domain.RepositoryInfo
	Err   error
	// Skipped is set when the URL failed the hosting pre-check and no
	// resolution ran.
	Skipped bool
}

// BaselineBranches is offered before any repository has been resolved.
func BaselineBranches() []string {
	return []string{"main", "develop", "staging"}
}

// Outcome is what the wizard shows for this result. Failed resolutions
// offer only "main"; not-found and unauthorized repositories are assumed
// private so the token prompt appears.
func (r Result) Outcome() *domain.RepositoryInfo {
	switch {
	case r.Skipped:
		return &domain.RepositoryInfo{Branches: BaselineBranches()}
	case r.Err != nil:
		kind := domain.ResolutionKindOf(r.Err)
		assumePrivate := kind == domain.KindNotFound || kind == domain.KindUnauthorized
		return &domain.RepositoryInfo{IsPrivate: assumePrivate, Branches: []string{"main"}}
	case r.Info != nil:
		return r.Info
	default:
		return &domain.RepositoryInfo{Branches: BaselineBranches()}
	}
}

// ApplyFunc receives results. It runs while the debouncer holds its lock,
// so it must not call back into the debouncer.
type ApplyFunc func(Result)

// Debouncer coalesces rapid edits into one resolution per settling window.
// Every submission bumps a generation counter; a resolution result is applied
// only if no newer submission happened meanwhile and the debouncer is open.
type Debouncer struct {
	resolver domain.RepositoryInfoResolver
	apply    ApplyFunc
	delay    time.Duration
	hosts    []string
	logger   *zap.Logger

	mu             sync.Mutex
	generation     uint64
	timer          *time.Timer
	cancelInFlight context.CancelFunc
	closed         bool
}

// New creates a debouncer. hosts feed the cheap hosting-URL pre-check.
func New(
	resolver domain.RepositoryInfoResolver,
	hosts []string,
	delay time.Duration,
	apply ApplyFunc,
	logger *zap.Logger,
) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		resolver: resolver,
		apply:    apply,
		delay:    delay,
		hosts:    hosts,
		logger:   logger,
	}
}

// Submit records the latest input and restarts the settling window.
func (d *Debouncer) Submit(repoURL, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.generation++
	generation := d.generation
	input := Input{URL: repoURL, Token: token}

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancelInFlight != nil {
		d.cancelInFlight()
		d.cancelInFlight = nil
	}

	if !parser.LooksLikeHostingURL(repoURL, d.hosts) {
		d.logger.Debug("Skipping resolution for non-hosting URL",
			zap.String("repo_url", repoURL),
			zap.Uint64("generation", generation))
		d.apply(Result{Input: input, Skipped: true})
		return
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(generation, input)
	})
}

// Close abandons the debouncer. Pending and in-flight resolutions are
// dropped and later submissions are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancelInFlight != nil {
		d.cancelInFlight()
		d.cancelInFlight = nil
	}
}

func (d *Debouncer) fire(generation uint64, input Input) {
	d.mu.Lock()
	if d.closed || generation != d.generation {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelInFlight = cancel
	d.mu.Unlock()
	defer cancel()

	d.logger.Debug("Resolving repository",
		zap.String("repo_url", input.URL),
		zap.Uint64("generation", generation))

	info, err := d.resolver.Resolve(ctx, input.URL, input.Token)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || generation != d.generation {
		d.logger.Debug("Discarding stale resolution",
			zap.String("repo_url", input.URL),
			zap.Uint64("generation", generation),
			zap.Uint64("latest_generation", d.generation),
			zap.Bool("closed", d.closed))
		return
	}
	d.cancelInFlight = nil
	d.apply(Result{Input: input, Info: info, Err: err})
}
