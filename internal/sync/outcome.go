package sync

import (
	"time"

	"github.com/schaermu/workflowsync/internal/github"
)

// Status is the terminal state of one target repository
type Status string

const (
	StatusSuccess   Status = "success"
	StatusSkipped   Status = "skipped"
	StatusNoChanges Status = "no_changes"
	StatusError     Status = "error"
)

// Outcome records what happened to one target repository
type Outcome struct {
	Repo         string
	Status       Status
	PR           *github.PullRequest
	Message      string
	FilesUpdated []string
	FilesFailed  []string
	// Branch is the sync branch created for this repository, if any
	Branch   string
	Merged   bool
	Duration time.Duration
}

// FileChange is one pending mutation of a target's workflow directory
type FileChange struct {
	Filename string
	Content  string
	// SHA is the version token of the existing file; empty for new files
	SHA    string
	Delete bool
}

// IsNew reports whether the change creates a file
func (c FileChange) IsNew() bool {
	return !c.Delete && c.SHA == ""
}

func skipped(repo, message string) Outcome {
	return Outcome{Repo: repo, Status: StatusSkipped, Message: message}
}

func failed(repo string, err error) Outcome {
	return Outcome{Repo: repo, Status: StatusError, Message: err.Error()}
}

func changeNames(changes []FileChange) []string {
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.Filename)
	}
	return names
}
