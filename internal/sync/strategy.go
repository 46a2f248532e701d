package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/schaermu/workflowsync/internal/github"
	"golang.org/x/sync/errgroup"
)

const (
	// rateCheckInterval is how many repositories the sequential strategy
	// processes between core budget checks
	rateCheckInterval = 5

	maxRateLimitWait = 300 * time.Second
)

// RepoFunc processes a single target repository
type RepoFunc func(ctx context.Context, repo *github.Repository) Outcome

// Strategy schedules the per-repository work of a run. Strategies differ
// only in scheduling; every outcome comes from the RepoFunc.
type Strategy interface {
	Sync(ctx context.Context, targets []*github.Repository, syncRepo RepoFunc) []Outcome
}

// Sequential processes targets one at a time in input order, pacing itself
// against the remaining core budget after every repository
type Sequential struct {
	gh     github.Gateway
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func (s *Sequential) Sync(ctx context.Context, targets []*github.Repository, syncRepo RepoFunc) []Outcome {
	outcomes := make([]Outcome, 0, len(targets))

	for idx, repo := range targets {
		if ctx.Err() != nil {
			s.logger.WarnContext(ctx, "run interrupted, remaining repositories not processed", "remaining", len(targets)-idx)
			break
		}

		if idx > 0 && idx%rateCheckInterval == 0 {
			if _, err := s.gh.CheckRateLimit(ctx, github.CoreQuota); err != nil {
				s.logger.WarnContext(ctx, "rate limit check failed", "error", err)
			}
		}

		s.logger.InfoContext(ctx, "syncing repository",
			"repo", repo.FullName,
			"position", idx+1,
			"total", len(targets))

		outcomes = append(outcomes, syncRepo(ctx, repo))

		if err := s.sleep(ctx, s.pacingDelay(ctx)); err != nil {
			s.logger.DebugContext(ctx, "pacing interrupted", "error", err)
		}
	}

	return outcomes
}

// pacingDelay sizes the pause after a repository by the remaining core
// budget: a full wait for the reset when nearly exhausted, short fixed
// pauses otherwise
func (s *Sequential) pacingDelay(ctx context.Context) time.Duration {
	budget, err := s.gh.RateBudget(ctx, github.CoreQuota)
	switch {
	case err != nil:
		s.logger.DebugContext(ctx, "rate budget unavailable, using conservative delay", "error", err)
		return 2 * time.Second
	case budget.Remaining < 10:
		wait := budget.WaitUntilReset(s.now(), maxRateLimitWait)
		s.logger.WarnContext(ctx, "core rate limit nearly exhausted, waiting for reset",
			"remaining", budget.Remaining,
			"wait", wait)
		return wait
	case budget.Remaining < 50:
		return 2 * time.Second
	default:
		return time.Second
	}
}

// Parallel processes targets on a bounded pool of workers. Outcomes are
// returned in completion order.
type Parallel struct {
	maxWorkers int
	logger     *slog.Logger
}

func (p *Parallel) Sync(ctx context.Context, targets []*github.Repository, syncRepo RepoFunc) []Outcome {
	p.logger.InfoContext(ctx, "processing repositories in parallel",
		"count", len(targets),
		"workers", p.maxWorkers)

	results := make(chan Outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(p.maxWorkers)

	for idx, repo := range targets {
		if ctx.Err() != nil {
			p.logger.WarnContext(ctx, "run interrupted, remaining repositories not processed", "remaining", len(targets)-idx)
			break
		}
		g.Go(func() error {
			results <- syncRepo(ctx, repo)
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(targets))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
