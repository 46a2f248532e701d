package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/schaermu/workflowsync/internal/config"
	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/logging"
	"github.com/schaermu/workflowsync/internal/workflow"
)

// SourceRepoError means the desired workflow set could not be loaded.
// It aborts the whole run.
type SourceRepoError struct {
	Repo string
	Err  error
}

func (e *SourceRepoError) Error() string {
	return fmt.Sprintf("source repository %s: %v", e.Repo, e.Err)
}

func (e *SourceRepoError) Unwrap() error {
	return e.Err
}

// Engine orchestrates a workflow sync run
type Engine struct {
	cfg     *config.Config
	gh      github.Gateway
	logger  *slog.Logger
	metrics *Metrics

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	randSuffix func() int
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, gh github.Gateway, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		gh:         gh,
		logger:     logger,
		metrics:    NewMetrics(),
		now:        time.Now,
		sleep:      sleepContext,
		randSuffix: func() int { return 1000 + rand.IntN(9000) },
	}
}

// Metrics returns the engine's metrics, accumulated over all runs
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Run executes a complete sync and returns one outcome per target.
// Source loading and authentication failures abort the run; per-repository
// failures become StatusError outcomes. When ctx is cancelled the outcomes
// collected so far are returned together with the context error.
func (e *Engine) Run(ctx context.Context) ([]Outcome, error) {
	start := e.now()
	e.logger.InfoContext(ctx, "starting sync",
		"org", e.cfg.Org,
		"topic", e.cfg.Topic,
		"source", e.cfg.SourceFullName(),
		"dry_run", e.cfg.DryRun,
		"parallel", e.cfg.Parallel)

	if _, err := e.gh.CheckRateLimit(ctx, github.CoreQuota); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	desired, err := e.loadDesired(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "loaded source workflows",
		"count", len(desired),
		"files", strings.Join(desired.Names(), ", "))

	if _, err := e.gh.CheckRateLimit(ctx, github.SearchQuota); err != nil {
		return nil, fmt.Errorf("failed to check search rate limit: %w", err)
	}

	targets, outcomes, err := e.discoverTargets(ctx)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 && len(outcomes) == 0 {
		return []Outcome{}, nil
	}

	syncRepo := func(ctx context.Context, repo *github.Repository) Outcome {
		return e.syncRepository(ctx, desired, repo)
	}
	outcomes = append(outcomes, e.strategy().Sync(ctx, targets, syncRepo)...)

	e.logger.InfoContext(ctx, "sync finished",
		"repositories", len(outcomes),
		"duration", e.now().Sub(start).Round(100*time.Millisecond))

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// loadDesired reads the workflow files of the source repository, narrowed
// to the configured file filter
func (e *Engine) loadDesired(ctx context.Context) (workflow.Set, error) {
	sourceName := e.cfg.SourceFullName()
	e.logger.InfoContext(ctx, "loading workflows", "source", sourceName)

	source, err := e.gh.GetRepository(ctx, sourceName)
	if err != nil {
		if errors.Is(err, github.ErrAuthentication) {
			return nil, err
		}
		return nil, &SourceRepoError{Repo: sourceName, Err: err}
	}

	files, err := e.gh.ListWorkflowFiles(ctx, source, workflow.Dir)
	if err != nil {
		if errors.Is(err, github.ErrAuthentication) {
			return nil, err
		}
		return nil, &SourceRepoError{Repo: sourceName, Err: err}
	}

	desired := workflow.Set(files).Filter(e.cfg.Files)
	if len(desired) == 0 {
		return nil, &SourceRepoError{
			Repo: sourceName,
			Err:  fmt.Errorf("no workflows found in %s", workflow.Dir),
		}
	}
	return desired, nil
}

// discoverTargets searches the org for repositories tagged with the topic,
// drops the source repository and resolves each candidate. Candidates
// that cannot be resolved are returned as error outcomes.
func (e *Engine) discoverTargets(ctx context.Context) ([]*github.Repository, []Outcome, error) {
	e.logger.InfoContext(ctx, "searching repositories", "org", e.cfg.Org, "topic", e.cfg.Topic)

	candidates, err := e.gh.SearchByTopic(ctx, e.cfg.Org, e.cfg.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search repositories: %w", err)
	}
	if len(candidates) == 0 {
		e.logger.WarnContext(ctx, "no repositories found with topic", "topic", e.cfg.Topic)
		return nil, nil, nil
	}
	e.logger.InfoContext(ctx, "found repositories", "count", len(candidates))

	source := e.cfg.SourceFullName()
	targets := make([]*github.Repository, 0, len(candidates))
	var unresolved []Outcome

	for _, candidate := range candidates {
		if strings.EqualFold(candidate.FullName, source) {
			continue
		}

		repo, err := e.gh.GetRepository(ctx, candidate.FullName)
		if err != nil {
			if errors.Is(err, github.ErrAuthentication) || ctx.Err() != nil {
				return nil, nil, err
			}
			out := failed(candidate.FullName, fmt.Errorf("failed to resolve repository: %w", err))
			e.metrics.observe(out)
			e.logOutcome(logging.WithRepo(ctx, candidate.FullName), out)
			unresolved = append(unresolved, out)
			continue
		}
		targets = append(targets, repo)
	}

	return targets, unresolved, nil
}

func (e *Engine) strategy() Strategy {
	if e.cfg.Parallel {
		return &Parallel{maxWorkers: e.cfg.MaxWorkers, logger: e.logger}
	}
	return &Sequential{gh: e.gh, logger: e.logger, sleep: e.sleep, now: e.now}
}

// syncRepository is the repository boundary: whatever happens inside,
// including a panic, ends as an outcome for repo.
func (e *Engine) syncRepository(ctx context.Context, desired workflow.Set, repo *github.Repository) (out Outcome) {
	ctx = logging.WithRepo(ctx, repo.FullName)
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic while syncing repository", "panic", r)
			out = failed(repo.FullName, fmt.Errorf("internal error: %v", r))
		}
		out.Duration = e.now().Sub(start)
		e.metrics.observe(out)
		e.logOutcome(ctx, out)
	}()

	return e.processRepository(ctx, desired, repo)
}

func (e *Engine) processRepository(ctx context.Context, desired workflow.Set, repo *github.Repository) Outcome {
	skip, err := e.checkSkip(ctx, repo)
	if err != nil {
		return failed(repo.FullName, err)
	}
	if skip != nil {
		return *skip
	}

	changes, err := e.computeChanges(ctx, desired, repo)
	if err != nil {
		return failed(repo.FullName, err)
	}

	if len(changes) == 0 {
		return Outcome{
			Repo:    repo.FullName,
			Status:  StatusNoChanges,
			Message: "all workflows are up to date",
		}
	}

	if e.cfg.DryRun {
		names := changeNames(changes)
		for _, c := range changes {
			e.logger.InfoContext(ctx, "[dry-run] would change workflow", "file", c.Filename, "action", changeAction(c))
		}
		return Outcome{
			Repo:         repo.FullName,
			Status:       StatusSkipped,
			Message:      fmt.Sprintf("dry run: %d file(s) would change", len(changes)),
			FilesUpdated: names,
		}
	}

	return e.applyChanges(ctx, repo, changes)
}

func (e *Engine) logOutcome(ctx context.Context, out Outcome) {
	duration := out.Duration.Round(100 * time.Millisecond)

	switch out.Status {
	case StatusSuccess:
		e.logger.InfoContext(ctx, "pull request created",
			"pr", out.PR.URL,
			"files", len(out.FilesUpdated),
			"merged", out.Merged,
			"duration", duration)
		if len(out.FilesFailed) > 0 {
			e.logger.WarnContext(ctx, "partial sync", "failed_files", strings.Join(out.FilesFailed, ", "))
		}
	case StatusNoChanges:
		e.logger.InfoContext(ctx, "no changes needed", "duration", duration)
	case StatusSkipped:
		e.logger.InfoContext(ctx, "skipped", "reason", out.Message)
	case StatusError:
		e.logger.ErrorContext(ctx, "sync failed", "error", out.Message)
	}
}

func changeAction(c FileChange) string {
	switch {
	case c.Delete:
		return "remove"
	case c.IsNew():
		return "add"
	default:
		return "update"
	}
}
