package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/workflow"
)

// checkSkip runs the pre-flight checks in order: archived, empty, and an
// already open sync pull request. It returns nil when the repository
// should be processed.
func (e *Engine) checkSkip(ctx context.Context, repo *github.Repository) (*Outcome, error) {
	if repo.Archived {
		out := skipped(repo.FullName, "repository is archived")
		return &out, nil
	}

	if repo.DefaultBranch == "" {
		out := skipped(repo.FullName, "empty repository (no default branch)")
		return &out, nil
	}
	if _, err := e.gh.BranchHead(ctx, repo, repo.DefaultBranch); err != nil {
		if errors.Is(err, github.ErrEmptyRepository) || errors.Is(err, github.ErrNotFound) {
			out := skipped(repo.FullName, "empty repository (no commits)")
			return &out, nil
		}
		return nil, fmt.Errorf("failed to resolve default branch: %w", err)
	}

	prs, err := e.gh.ListOpenPRsWithBranchPrefix(ctx, repo, workflow.BranchPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list open pull requests: %w", err)
	}
	if len(prs) > 0 {
		out := skipped(repo.FullName, "existing sync PR: "+prs[0])
		return &out, nil
	}

	return nil, nil
}
