// Package github is the remote repository gateway: everything workflowsync
// needs from the GitHub REST API, with retries and rate-limit pacing built in.
package github

import (
	"context"
	"time"
)

// Gateway provides the repository operations the sync engine depends on.
// Implementations retry transient failures internally; the errors they
// return are final.
type Gateway interface {
	// GetRepository resolves owner/name into a repository handle
	GetRepository(ctx context.Context, fullName string) (*Repository, error)
	// SearchByTopic lists non-archived, pushable repositories of org tagged
	// with topic. Search failures yield an empty list.
	SearchByTopic(ctx context.Context, org, topic string) ([]Repository, error)
	// GetFileContent returns the file at path on the default branch, or nil if absent
	GetFileContent(ctx context.Context, repo *Repository, path string) (*FileContent, error)
	// ListWorkflowFiles returns filename -> content for workflow files in dir
	ListWorkflowFiles(ctx context.Context, repo *Repository, dir string) (map[string]string, error)
	// ListWorkflowEntries lists workflow files in dir; a missing dir yields an empty list
	ListWorkflowEntries(ctx context.Context, repo *Repository, dir string) ([]FileEntry, error)

	// BranchHead returns the commit SHA the branch points at
	BranchHead(ctx context.Context, repo *Repository, branch string) (string, error)
	CreateBranch(ctx context.Context, repo *Repository, name, baseSHA string) error
	BranchExists(ctx context.Context, repo *Repository, name string) (bool, error)
	// DeleteBranch is best-effort; failures are logged, never returned
	DeleteBranch(ctx context.Context, repo *Repository, name string)

	// WriteFile creates the file when SHA is empty and updates it otherwise
	WriteFile(ctx context.Context, repo *Repository, w FileWrite) error
	DeleteFile(ctx context.Context, repo *Repository, d FileDelete) error

	OpenPullRequest(ctx context.Context, repo *Repository, pr NewPullRequest) (*PullRequest, error)
	// ListOpenPRsWithBranchPrefix returns URLs of open PRs whose head branch
	// starts with prefix. Listing failures yield an empty list.
	ListOpenPRsWithBranchPrefix(ctx context.Context, repo *Repository, prefix string) ([]string, error)
	// MergePullRequest merges the PR, updating its branch when it is behind base
	MergePullRequest(ctx context.Context, repo *Repository, number int, method string) (bool, error)

	// CheckRateLimit blocks until the quota is above its threshold (capped)
	// and returns the budget observed before waiting.
	CheckRateLimit(ctx context.Context, quota Quota) (Budget, error)
	// RateBudget reads the current budget without waiting
	RateBudget(ctx context.Context, quota Quota) (Budget, error)
}

// Repository is a snapshot of a target or source repository
type Repository struct {
	Owner         string
	Name          string
	FullName      string
	DefaultBranch string
	Archived      bool
	CanPush       bool
}

// FileContent is a file's decoded body and its version token
type FileContent struct {
	Content string
	SHA     string
}

// FileEntry is a directory listing entry
type FileEntry struct {
	Name string
	Path string
	SHA  string
}

// FileWrite describes a create-or-update commit on a branch
type FileWrite struct {
	Path    string
	Content string
	Message string
	Branch  string
	SHA     string // empty for a new file
}

// FileDelete describes a file removal commit on a branch
type FileDelete struct {
	Path    string
	Message string
	Branch  string
	SHA     string
}

// NewPullRequest describes a pull request to open
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// PullRequest references an opened pull request
type PullRequest struct {
	URL    string
	Number int
}

// Quota selects one of GitHub's rate-limit buckets
type Quota string

const (
	CoreQuota   Quota = "core"
	SearchQuota Quota = "search"
)

// Budget is an observed rate-limit bucket
type Budget struct {
	Quota     Quota
	Limit     int
	Remaining int
	Reset     time.Time
}

// WaitUntilReset returns how long to wait for the bucket to refill, padded
// by five seconds and capped at limit.
func (b Budget) WaitUntilReset(now time.Time, limit time.Duration) time.Duration {
	wait := b.Reset.Sub(now) + 5*time.Second
	if wait <= 0 {
		return 0
	}
	if wait > limit {
		return limit
	}
	return wait
}
