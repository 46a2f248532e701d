package sync

import (
	"context"
	"fmt"

	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/workflow"
)

// applyChanges stages changes on a fresh sync branch and opens a pull
// request for it. Files are written independently; the branch is removed
// again when no file could be written or when a later step fails, including
// a panic.
func (e *Engine) applyChanges(ctx context.Context, repo *github.Repository, changes []FileChange) (out Outcome) {
	out = Outcome{Repo: repo.FullName}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e.logger.ErrorContext(ctx, "panic during sync transaction", "branch", out.Branch, "panic", r)
		if out.Status == StatusSuccess {
			// the pull request is already open
			out.Message += ", internal error after opening pull request"
			return
		}
		if out.Branch != "" {
			e.gh.DeleteBranch(ctx, repo, out.Branch)
		}
		out.Status = StatusError
		out.Message = fmt.Sprintf("internal error: %v", r)
	}()

	baseSHA, err := e.gh.BranchHead(ctx, repo, repo.DefaultBranch)
	if err != nil {
		return failed(repo.FullName, fmt.Errorf("failed to resolve %s: %w", repo.DefaultBranch, err))
	}

	branch, err := e.branchName(ctx, repo)
	if err != nil {
		return failed(repo.FullName, err)
	}
	if err := e.gh.CreateBranch(ctx, repo, branch, baseSHA); err != nil {
		return failed(repo.FullName, fmt.Errorf("failed to create branch %s: %w", branch, err))
	}
	out.Branch = branch
	e.logger.DebugContext(ctx, "created sync branch", "branch", branch, "base", baseSHA)

	// abort rolls back the branch and reports err
	abort := func(err error) Outcome {
		e.gh.DeleteBranch(ctx, repo, branch)
		out.Status = StatusError
		out.Message = err.Error()
		return out
	}

	var updated, removed []string
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return abort(fmt.Errorf("sync interrupted: %w", err))
		}

		if err := e.applyChange(ctx, repo, branch, change); err != nil {
			e.logger.ErrorContext(ctx, "failed to write workflow", "file", change.Filename, "error", err)
			e.metrics.fileWritten(false)
			out.FilesFailed = append(out.FilesFailed, change.Filename)
			continue
		}

		e.metrics.fileWritten(true)
		out.FilesUpdated = append(out.FilesUpdated, change.Filename)
		if change.Delete {
			removed = append(removed, change.Filename)
		} else {
			updated = append(updated, change.Filename)
		}
	}

	if len(out.FilesUpdated) == 0 {
		return abort(fmt.Errorf("all updates failed"))
	}

	pr, err := e.gh.OpenPullRequest(ctx, repo, github.NewPullRequest{
		Title: prTitle,
		Body:  prBody(e.cfg.SourceFullName(), updated, removed, out.FilesFailed),
		Head:  branch,
		Base:  repo.DefaultBranch,
	})
	if err != nil {
		return abort(fmt.Errorf("failed to open pull request: %w", err))
	}

	out.Status = StatusSuccess
	out.PR = pr
	out.Message = fmt.Sprintf("%d file(s) updated", len(out.FilesUpdated))

	if e.cfg.Merge.Auto {
		e.autoMerge(ctx, repo, &out)
	}

	return out
}

// applyChange commits a single file change onto branch
func (e *Engine) applyChange(ctx context.Context, repo *github.Repository, branch string, c FileChange) error {
	if c.Delete {
		return e.gh.DeleteFile(ctx, repo, github.FileDelete{
			Path:    workflow.Path(c.Filename),
			Message: commitMessage(c),
			Branch:  branch,
			SHA:     c.SHA,
		})
	}
	return e.gh.WriteFile(ctx, repo, github.FileWrite{
		Path:    workflow.Path(c.Filename),
		Content: c.Content,
		Message: commitMessage(c),
		Branch:  branch,
		SHA:     c.SHA,
	})
}

// branchName returns "<prefix>-<unix millis>", with a random four digit
// suffix when that name is already taken
func (e *Engine) branchName(ctx context.Context, repo *github.Repository) (string, error) {
	name := fmt.Sprintf("%s-%d", workflow.BranchPrefix, e.now().UnixMilli())

	exists, err := e.gh.BranchExists(ctx, repo, name)
	if err != nil {
		return "", fmt.Errorf("failed to check branch %s: %w", name, err)
	}
	if exists {
		name = fmt.Sprintf("%s-%d", name, e.randSuffix())
		e.logger.DebugContext(ctx, "branch name taken, using suffix", "branch", name)
	}
	return name, nil
}

// autoMerge merges the freshly opened pull request. A failed merge is
// noted on the outcome but leaves it successful.
func (e *Engine) autoMerge(ctx context.Context, repo *github.Repository, out *Outcome) {
	merged, err := e.gh.MergePullRequest(ctx, repo, out.PR.Number, string(e.cfg.Merge.Method))
	switch {
	case err != nil:
		e.logger.WarnContext(ctx, "auto-merge failed", "pr", out.PR.URL, "error", err)
		out.Message += ", auto-merge failed"
	case !merged:
		e.logger.WarnContext(ctx, "pull request could not be merged", "pr", out.PR.URL)
		out.Message += ", not mergeable"
	default:
		out.Merged = true
		out.Message += ", merged"
	}
}
