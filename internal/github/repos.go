package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"github.com/schaermu/workflowsync/internal/workflow"
)

const searchPageSize = 100

// GetRepository resolves owner/name into a repository handle
func (c *Client) GetRepository(ctx context.Context, fullName string) (*Repository, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var repo *gh.Repository
	err = c.do(ctx, "get repository "+fullName, func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	return toRepository(repo), nil
}

// SearchByTopic lists candidate repositories tagged with topic in org.
// Archived and read-only repositories are dropped. A failing search is
// logged and treated as "no targets".
func (c *Client) SearchByTopic(ctx context.Context, org, topic string) ([]Repository, error) {
	query := fmt.Sprintf("org:%s topic:%s", org, topic)
	opts := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: searchPageSize}}

	var repos []Repository
	for {
		var result *gh.RepositoriesSearchResult
		var resp *gh.Response
		err := c.do(ctx, "search repositories", func(ctx context.Context) (*gh.Response, error) {
			var err error
			result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
			return resp, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.ErrorContext(ctx, "repository search failed", "query", query, "error", err)
			return []Repository{}, nil
		}

		for _, r := range result.Repositories {
			repo := toRepository(r)
			if repo.Archived {
				c.logger.DebugContext(ctx, "skipping archived repository", "repo", repo.FullName)
				continue
			}
			if !repo.CanPush {
				c.logger.DebugContext(ctx, "skipping repository without push access", "repo", repo.FullName)
				continue
			}
			repos = append(repos, *repo)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.InfoContext(ctx, "repository search complete", "query", query, "count", len(repos))
	if repos == nil {
		repos = []Repository{}
	}
	return repos, nil
}

// GetFileContent returns the file at path on the default branch, nil if absent
func (c *Client) GetFileContent(ctx context.Context, repo *Repository, path string) (*FileContent, error) {
	file, err := c.getFile(ctx, repo, path, "")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ListWorkflowFiles reads every workflow file in dir.
// A missing dir is reported as ErrNotFound.
func (c *Client) ListWorkflowFiles(ctx context.Context, repo *Repository, dir string) (map[string]string, error) {
	entries, err := c.listDir(ctx, repo, dir)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("workflows path not found in %s: %w", repo.FullName, ErrNotFound)
		}
		return nil, err
	}

	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		file, err := c.getFile(ctx, repo, entry.Path, "")
		if err != nil {
			return nil, fmt.Errorf("reading %s from %s: %w", entry.Path, repo.FullName, err)
		}
		files[entry.Name] = file.Content
	}
	return files, nil
}

// ListWorkflowEntries lists workflow files in dir; a missing dir is empty
func (c *Client) ListWorkflowEntries(ctx context.Context, repo *Repository, dir string) ([]FileEntry, error) {
	entries, err := c.listDir(ctx, repo, dir)
	if errors.Is(err, ErrNotFound) {
		return []FileEntry{}, nil
	}
	return entries, err
}

func (c *Client) listDir(ctx context.Context, repo *Repository, dir string) ([]FileEntry, error) {
	var listing []*gh.RepositoryContent
	err := c.do(ctx, "list "+dir, func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		_, listing, resp, err = c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, dir, nil)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(listing))
	for _, item := range listing {
		if item.GetType() != "file" || !workflow.IsWorkflowFile(item.GetName()) {
			continue
		}
		entries = append(entries, FileEntry{
			Name: item.GetName(),
			Path: item.GetPath(),
			SHA:  item.GetSHA(),
		})
	}
	return entries, nil
}

func (c *Client) getFile(ctx context.Context, repo *Repository, path, ref string) (*FileContent, error) {
	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}

	var file *gh.RepositoryContent
	err := c.do(ctx, "get "+path, func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		file, _, resp, err = c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s in %s is a directory", path, repo.FullName)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &FileContent{Content: content, SHA: file.GetSHA()}, nil
}

// WriteFile commits a create or update of a single file on a branch
func (c *Client) WriteFile(ctx context.Context, repo *Repository, w FileWrite) error {
	if err := c.waitMutation(ctx); err != nil {
		return err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(w.Message),
		Content: []byte(w.Content),
		Branch:  gh.String(w.Branch),
	}
	if w.SHA != "" {
		opts.SHA = gh.String(w.SHA)
	}

	return c.do(ctx, "write "+w.Path, func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		if w.SHA != "" {
			_, resp, err = c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, w.Path, opts)
		} else {
			_, resp, err = c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, w.Path, opts)
		}
		return resp, err
	})
}

// DeleteFile commits the removal of a single file on a branch
func (c *Client) DeleteFile(ctx context.Context, repo *Repository, d FileDelete) error {
	if err := c.waitMutation(ctx); err != nil {
		return err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(d.Message),
		Branch:  gh.String(d.Branch),
		SHA:     gh.String(d.SHA),
	}
	return c.do(ctx, "delete "+d.Path, func(ctx context.Context) (*gh.Response, error) {
		_, resp, err := c.gh.Repositories.DeleteFile(ctx, repo.Owner, repo.Name, d.Path, opts)
		return resp, err
	})
}

func toRepository(r *gh.Repository) *Repository {
	fullName := r.GetFullName()
	owner := r.GetOwner().GetLogin()
	name := r.GetName()
	if o, n, ok := strings.Cut(fullName, "/"); ok {
		owner, name = o, n
	}

	canPush := true
	if perms := r.GetPermissions(); perms != nil {
		if push, ok := perms["push"]; ok {
			canPush = push
		}
	}

	return &Repository{
		Owner:         owner,
		Name:          name,
		FullName:      fullName,
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
		CanPush:       canPush,
	}
}
