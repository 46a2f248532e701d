// Package report renders the end-of-run summary of a workflow sync.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schaermu/workflowsync/internal/sync"
)

// Summary groups the outcomes of a run by status
type Summary struct {
	Created   []sync.Outcome
	NoChanges []sync.Outcome
	Skipped   []sync.Outcome
	Errors    []sync.Outcome

	// Duration is the sum of per-repository durations
	Duration time.Duration
}

// Summarize groups outcomes by status. Each group is ordered by repository
// name so parallel runs render the same way as sequential ones.
func Summarize(outcomes []sync.Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Duration += o.Duration
		switch o.Status {
		case sync.StatusSuccess:
			s.Created = append(s.Created, o)
		case sync.StatusNoChanges:
			s.NoChanges = append(s.NoChanges, o)
		case sync.StatusSkipped:
			s.Skipped = append(s.Skipped, o)
		case sync.StatusError:
			s.Errors = append(s.Errors, o)
		}
	}

	for _, group := range [][]sync.Outcome{s.Created, s.NoChanges, s.Skipped, s.Errors} {
		sort.SliceStable(group, func(i, j int) bool { return group[i].Repo < group[j].Repo })
	}
	return s
}

// Total returns the number of repositories in the summary
func (s Summary) Total() int {
	return len(s.Created) + len(s.NoChanges) + len(s.Skipped) + len(s.Errors)
}

// HasErrors reports whether any repository ended in an error; the CLI
// exits non-zero in that case
func (s Summary) HasErrors() bool {
	return len(s.Errors) > 0
}

// Render writes the counts table followed by a per-repository table of
// everything that needs attention
func Render(w io.Writer, s Summary) {
	counts := table.NewWriter()
	counts.SetOutputMirror(w)
	counts.SetTitle("Workflow sync summary")
	counts.AppendHeader(table.Row{"RESULT", "REPOSITORIES"})
	counts.AppendRows([]table.Row{
		{"PRs created", len(s.Created)},
		{"No changes", len(s.NoChanges)},
		{"Skipped", len(s.Skipped)},
		{"Errors", len(s.Errors)},
	})
	counts.AppendSeparator()
	counts.AppendRow(table.Row{"Total duration", s.Duration.Round(100 * time.Millisecond).String()})
	counts.Render()

	if len(s.Created)+len(s.Skipped)+len(s.Errors) == 0 {
		return
	}

	details := table.NewWriter()
	details.SetOutputMirror(w)
	details.AppendHeader(table.Row{"REPOSITORY", "STATUS", "DETAILS"})

	for _, o := range s.Created {
		details.AppendRow(table.Row{o.Repo, o.Status, createdDetails(o)})
	}
	if len(s.Created) > 0 && len(s.Errors)+len(s.Skipped) > 0 {
		details.AppendSeparator()
	}
	for _, o := range s.Errors {
		details.AppendRow(table.Row{o.Repo, o.Status, o.Message})
	}
	for _, o := range s.Skipped {
		details.AppendRow(table.Row{o.Repo, o.Status, o.Message})
	}
	details.Render()
}

func createdDetails(o sync.Outcome) string {
	d := ""
	if o.PR != nil {
		d = o.PR.URL
	}
	if len(o.FilesFailed) > 0 {
		d += fmt.Sprintf(" (partial: %d file(s) failed)", len(o.FilesFailed))
	}
	if o.Merged {
		d += " (merged)"
	}
	return d
}
