package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v57/github"
	"github.com/sony/gobreaker/v2"
)

// do runs one API call under the per-call timeout and circuit breaker,
// retrying transient failures with exponential backoff. Non-transient
// failures are classified and returned immediately.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) (*gh.Response, error)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.maxRateLimitWait
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		_, err := c.breaker.Execute(func() (*gh.Response, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return fn(callCtx)
		})
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		if !isTransient(err) {
			return classify(op, err)
		}

		lastErr = err
		wait := c.retryDelay(err, attempt, b)
		c.logger.WarnContext(ctx, "transient API failure, retrying",
			"op", op,
			"error", err,
			"wait", wait,
			"attempt", attempt+1,
			"max_attempts", c.maxRetries)

		if attempt == c.maxRetries-1 {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	c.logger.ErrorContext(ctx, "all retries exhausted", "op", op, "attempts", c.maxRetries)
	return fmt.Errorf("%s: all %d attempts failed: %w", op, c.maxRetries, lastErr)
}

// retryDelay picks the wait before the next attempt. Secondary rate limits
// honor Retry-After and otherwise back off from one minute.
func (c *Client) retryDelay(err error, attempt int, b *backoff.ExponentialBackOff) time.Duration {
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if abuse.RetryAfter != nil {
			return *abuse.RetryAfter
		}
		wait := time.Minute << attempt
		if wait > c.maxRateLimitWait {
			wait = c.maxRateLimitWait
		}
		return wait
	}
	return b.NextBackOff()
}

// isTransient reports whether err is worth retrying
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return true
	}
	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		return false
	}

	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.Response == nil {
			return false
		}
		switch errResp.Response.StatusCode {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// network failures and per-call timeouts
	return true
}

// classify maps a non-transient API error onto the gateway's error taxonomy
func classify(op string, err error) error {
	var errResp *gh.ErrorResponse
	if !errors.As(err, &errResp) || errResp.Response == nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := errResp.Response.StatusCode
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrAuthentication)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusConflict:
		if strings.Contains(strings.ToLower(errResp.Message), "empty") {
			return fmt.Errorf("%s: %w", op, ErrEmptyRepository)
		}
	}

	return &AccessError{
		Op:         op,
		StatusCode: status,
		Message:    errResp.Message,
		Err:        err,
	}
}
