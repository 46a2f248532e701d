package github

import (
	"context"
	"errors"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
)

const (
	maxMergeAttempts = 3
	branchUpdateWait = 2 * time.Second
)

// mergeBehindMarkers are fragments of merge rejections that mean the
// head branch must first be brought up to date with base.
var mergeBehindMarkers = []string{
	"head branch was modified",
	"not up to date",
	"behind",
	"out-of-date",
}

// OpenPullRequest opens a pull request and returns its URL and number
func (c *Client) OpenPullRequest(ctx context.Context, repo *Repository, pr NewPullRequest) (*PullRequest, error) {
	if err := c.waitMutation(ctx); err != nil {
		return nil, err
	}

	req := &gh.NewPullRequest{
		Title: gh.String(pr.Title),
		Head:  gh.String(pr.Head),
		Base:  gh.String(pr.Base),
		Body:  gh.String(pr.Body),
	}

	var created *gh.PullRequest
	err := c.do(ctx, "create pull request", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		created, resp, err = c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, req)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	return &PullRequest{URL: created.GetHTMLURL(), Number: created.GetNumber()}, nil
}

// ListOpenPRsWithBranchPrefix returns the URLs of open pull requests whose
// head branch starts with prefix. Listing failures are logged and yield
// an empty list.
func (c *Client) ListOpenPRsWithBranchPrefix(ctx context.Context, repo *Repository, prefix string) ([]string, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	urls := []string{}
	for {
		var prs []*gh.PullRequest
		var resp *gh.Response
		err := c.do(ctx, "list pull requests", func(ctx context.Context) (*gh.Response, error) {
			var err error
			prs, resp, err = c.gh.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
			return resp, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnContext(ctx, "listing open pull requests failed", "repo", repo.FullName, "error", err)
			return []string{}, nil
		}

		for _, pr := range prs {
			if strings.HasPrefix(pr.GetHead().GetRef(), prefix) {
				urls = append(urls, pr.GetHTMLURL())
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return urls, nil
}

// MergePullRequest merges a pull request with method. When GitHub rejects
// the merge because the head is behind base, the branch is updated and the
// merge retried. It returns false when the pull request cannot be merged.
func (c *Client) MergePullRequest(ctx context.Context, repo *Repository, number int, method string) (bool, error) {
	var pr *gh.PullRequest
	err := c.do(ctx, "get pull request", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
		return resp, err
	})
	if err != nil {
		return false, err
	}
	if pr.Mergeable != nil && !*pr.Mergeable {
		c.logger.WarnContext(ctx, "pull request is not mergeable", "repo", repo.FullName, "pr", number)
		return false, nil
	}

	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		if err := c.waitMutation(ctx); err != nil {
			return false, err
		}

		var result *gh.PullRequestMergeResult
		err := c.do(ctx, "merge pull request", func(ctx context.Context) (*gh.Response, error) {
			var resp *gh.Response
			var err error
			result, resp, err = c.gh.PullRequests.Merge(ctx, repo.Owner, repo.Name, number, "",
				&gh.PullRequestOptions{MergeMethod: method})
			return resp, err
		})
		if err == nil {
			if !result.GetMerged() {
				c.logger.WarnContext(ctx, "merge was not performed", "repo", repo.FullName, "pr", number, "message", result.GetMessage())
				return false, nil
			}
			c.logger.InfoContext(ctx, "merged pull request", "repo", repo.FullName, "pr", number, "method", method)
			return true, nil
		}

		if !isBehindBase(err) || attempt == maxMergeAttempts {
			return false, err
		}

		c.logger.InfoContext(ctx, "pull request branch is behind base, updating", "repo", repo.FullName, "pr", number, "attempt", attempt)
		if err := c.updateBranch(ctx, repo, number); err != nil {
			return false, err
		}
		if err := c.sleep(ctx, branchUpdateWait); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Client) updateBranch(ctx context.Context, repo *Repository, number int) error {
	if err := c.waitMutation(ctx); err != nil {
		return err
	}

	err := c.do(ctx, "update pull request branch", func(ctx context.Context) (*gh.Response, error) {
		_, resp, err := c.gh.PullRequests.UpdateBranch(ctx, repo.Owner, repo.Name, number, nil)
		return resp, err
	})

	// 202: the update is scheduled in the background
	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		return nil
	}
	return err
}

func isBehindBase(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range mergeBehindMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
