package github

import (
	"context"
	"errors"
	"fmt"

	gh "github.com/google/go-github/v57/github"
)

// RateBudget reads the current budget of a quota without waiting
func (c *Client) RateBudget(ctx context.Context, quota Quota) (Budget, error) {
	var limits *gh.RateLimits
	err := c.do(ctx, "get rate limit", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		limits, resp, err = c.gh.RateLimit.Get(ctx)
		return resp, err
	})
	if err != nil {
		return Budget{}, err
	}

	var r *gh.Rate
	switch quota {
	case CoreQuota:
		r = limits.Core
	case SearchQuota:
		r = limits.Search
	default:
		return Budget{}, fmt.Errorf("unknown rate limit quota %q", quota)
	}
	if r == nil {
		return Budget{}, fmt.Errorf("rate limit response has no %s quota", quota)
	}

	return Budget{
		Quota:     quota,
		Limit:     r.Limit,
		Remaining: r.Remaining,
		Reset:     r.Reset.Time,
	}, nil
}

// CheckRateLimit waits for the quota to refill when it has dropped below
// its threshold. The wait is capped. A failed read is logged and ignored
// unless the token was rejected.
func (c *Client) CheckRateLimit(ctx context.Context, quota Quota) (Budget, error) {
	budget, err := c.RateBudget(ctx, quota)
	if err != nil {
		if ctx.Err() != nil {
			return Budget{}, ctx.Err()
		}
		if errors.Is(err, ErrAuthentication) {
			return Budget{}, err
		}
		c.logger.WarnContext(ctx, "could not read rate limit, continuing", "quota", quota, "error", err)
		return Budget{}, nil
	}

	threshold := coreRateLimitThreshold
	if quota == SearchQuota {
		threshold = searchRateLimitThreshold
	}

	c.logger.DebugContext(ctx, "rate limit", "quota", quota, "remaining", budget.Remaining, "limit", budget.Limit)
	if budget.Remaining >= threshold {
		return budget, nil
	}

	wait := budget.WaitUntilReset(c.now(), c.maxRateLimitWait)
	if wait <= 0 {
		return budget, nil
	}
	c.logger.WarnContext(ctx, "rate limit low, waiting for reset",
		"quota", quota,
		"remaining", budget.Remaining,
		"wait", wait)

	if err := c.sleep(ctx, wait); err != nil {
		return budget, err
	}
	return budget, nil
}
