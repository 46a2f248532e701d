package sync

import (
	"context"
	"fmt"

	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/workflow"
)

// computeChanges returns the file changes needed to bring repo's default
// branch in line with desired. Files whose content matches after trimming
// surrounding whitespace are left alone, so an already synced repository
// yields no changes.
func (e *Engine) computeChanges(ctx context.Context, desired workflow.Set, repo *github.Repository) ([]FileChange, error) {
	changes := make([]FileChange, 0)

	for _, name := range desired.Names() {
		content := desired[name]

		existing, err := e.gh.GetFileContent(ctx, repo, workflow.Path(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		if existing == nil {
			e.logger.DebugContext(ctx, "workflow will be created", "file", name)
			changes = append(changes, FileChange{Filename: name, Content: content})
			continue
		}

		if workflow.SameContent(existing.Content, content) {
			continue
		}

		e.logger.DebugContext(ctx, "workflow needs update", "file", name)
		changes = append(changes, FileChange{
			Filename: name,
			Content:  content,
			SHA:      existing.SHA,
		})
	}

	if !e.cfg.PruneEnabled() {
		return changes, nil
	}

	entries, err := e.gh.ListWorkflowEntries(ctx, repo, workflow.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	for _, entry := range entries {
		if _, ok := desired[entry.Name]; ok {
			continue
		}
		e.logger.DebugContext(ctx, "workflow will be removed", "file", entry.Name)
		changes = append(changes, FileChange{
			Filename: entry.Name,
			SHA:      entry.SHA,
			Delete:   true,
		})
	}

	return changes, nil
}
