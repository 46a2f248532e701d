package github

import (
	"context"
	"errors"
	"time"

	gh "github.com/google/go-github/v57/github"
)

const branchCleanupTimeout = 30 * time.Second

// BranchHead returns the commit SHA the branch points at
func (c *Client) BranchHead(ctx context.Context, repo *Repository, branch string) (string, error) {
	var ref *gh.Reference
	err := c.do(ctx, "get ref heads/"+branch, func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		ref, resp, err = c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch points a new branch at baseSHA
func (c *Client) CreateBranch(ctx context.Context, repo *Repository, name, baseSHA string) error {
	if err := c.waitMutation(ctx); err != nil {
		return err
	}

	ref := &gh.Reference{
		Ref:    gh.String("refs/heads/" + name),
		Object: &gh.GitObject{SHA: gh.String(baseSHA)},
	}
	return c.do(ctx, "create branch "+name, func(ctx context.Context) (*gh.Response, error) {
		_, resp, err := c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, ref)
		return resp, err
	})
}

// BranchExists reports whether a branch named name exists
func (c *Client) BranchExists(ctx context.Context, repo *Repository, name string) (bool, error) {
	_, err := c.BranchHead(ctx, repo, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteBranch removes a branch. It runs on a context detached from
// cancellation so cleanup still happens during shutdown. Failures are logged.
func (c *Client) DeleteBranch(ctx context.Context, repo *Repository, name string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), branchCleanupTimeout)
	defer cancel()

	err := c.do(cleanupCtx, "delete branch "+name, func(ctx context.Context) (*gh.Response, error) {
		return c.gh.Git.DeleteRef(ctx, repo.Owner, repo.Name, "heads/"+name)
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to delete branch", "repo", repo.FullName, "branch", name, "error", err)
		return
	}
	c.logger.InfoContext(ctx, "deleted branch", "repo", repo.FullName, "branch", name)
}
