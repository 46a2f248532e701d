package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries       = 3
	defaultRetryBase        = 2 * time.Second
	defaultMaxRateLimitWait = 300 * time.Second

	coreRateLimitThreshold   = 50
	searchRateLimitThreshold = 5

	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
)

// Options configures a Client
type Options struct {
	Token   string
	BaseURL string // empty for api.github.com
	// Timeout bounds every single API request
	Timeout time.Duration
	// MutationsPerSecond paces content-creating requests; 0 disables pacing
	MutationsPerSecond float64
	Logger             *slog.Logger
}

// Client implements Gateway on top of go-github
type Client struct {
	gh        *gh.Client
	logger    *slog.Logger
	timeout   time.Duration
	mutations *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*gh.Response]

	maxRetries       int
	retryBase        time.Duration
	maxRateLimitWait time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
	now              func() time.Time
}

var _ Gateway = (*Client)(nil)

// NewClient creates a GitHub client authenticated with a static token
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: opts.Token},
	)
	ghClient := gh.NewClient(oauth2.NewClient(ctx, ts))

	if opts.BaseURL != "" {
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL: %w", err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		ghClient.BaseURL = base
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.MutationsPerSecond > 0 {
		limit = rate.Limit(opts.MutationsPerSecond)
	}

	c := &Client{
		gh:               ghClient,
		logger:           logger,
		timeout:          timeout,
		mutations:        rate.NewLimiter(limit, 1),
		maxRetries:       defaultMaxRetries,
		retryBase:        defaultRetryBase,
		maxRateLimitWait: defaultMaxRateLimitWait,
		sleep:            sleepContext,
		now:              time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*gh.Response](gobreaker.Settings{
		Name:    "github-api",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		// Only transient failures say anything about the API's health;
		// a 404 for a missing file is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// waitMutation blocks until the mutation pacer admits another write
func (c *Client) waitMutation(ctx context.Context) error {
	if err := c.mutations.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for mutation slot: %w", err)
	}
	return nil
}

// splitFullName splits owner/name
func splitFullName(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository name %q: expected owner/name", fullName)
	}
	return owner, name, nil
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
