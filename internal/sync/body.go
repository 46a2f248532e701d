package sync

import (
	"fmt"
	"strings"
)

const prTitle = "chore: sync GitHub Actions workflows"

// prBody renders the pull request description. The output depends only on
// its arguments.
func prBody(source string, updated, removed, failed []string) string {
	var b strings.Builder

	b.WriteString("## Workflow sync\n\n")
	b.WriteString("This PR syncs the GitHub Actions workflows from the source repository.\n\n")

	b.WriteString("### Updated files\n")
	for _, f := range updated {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}

	if len(removed) > 0 {
		b.WriteString("\n### Removed files\n")
		for _, f := range removed {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}

	if len(failed) > 0 {
		quoted := make([]string, len(failed))
		for i, f := range failed {
			quoted[i] = "`" + f + "`"
		}
		fmt.Fprintf(&b, "\n> **Warning**: some files could not be synced: %s\n", strings.Join(quoted, ", "))
	}

	fmt.Fprintf(&b, "\n### Source repository\n`%s`\n\n", source)
	b.WriteString("---\n*Generated automatically by workflowsync*\n")

	return b.String()
}

// commitMessage distinguishes new, updated and removed workflows
func commitMessage(c FileChange) string {
	switch {
	case c.Delete:
		return "chore: remove workflow " + c.Filename
	case c.IsNew():
		return "chore: add workflow " + c.Filename
	default:
		return "chore: sync workflow " + c.Filename
	}
}
