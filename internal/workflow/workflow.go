package workflow

import (
	"path"
	"sort"
	"strings"
)

// Dir is the repository-relative directory holding GitHub Actions workflows
const Dir = ".github/workflows"

// BranchPrefix is reserved for sync branches; open PRs from branches with
// this prefix mark a target as already having a pending sync.
const BranchPrefix = "sync/workflows-update"

// ValidExtensions are the recognized workflow file extensions
var ValidExtensions = []string{
	".yml",
	".yaml",
}

// IsWorkflowFile returns true if the file has a valid workflow extension
func IsWorkflowFile(name string) bool {
	ext := path.Ext(name)
	for _, valid := range ValidExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}

// Path returns the repository path of a workflow file
func Path(filename string) string {
	return Dir + "/" + filename
}

// Set is the desired state of a run: workflow filename -> content.
// It is loaded once from the source repository and never mutated afterwards.
type Set map[string]string

// Filter returns the subset of s whose names appear in names.
// An empty names list returns s unchanged.
func (s Set) Filter(names []string) Set {
	if len(names) == 0 {
		return s
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	out := make(Set)
	for name, content := range s {
		if wanted[name] {
			out[name] = content
		}
	}
	return out
}

// Names returns the workflow filenames in lexical order
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SameContent reports whether two workflow bodies are equal once leading
// and trailing whitespace is ignored.
func SameContent(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
