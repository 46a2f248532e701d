package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError reports an invalid user input. It never reaches the sync engine.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s '%s': %s", e.Field, e.Value, e.Reason)
}

type namePattern struct {
	field  string
	re     *regexp.Regexp
	reason string
}

var (
	orgPattern = namePattern{
		field: "organization name",
		re:    regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,99}$`),
	}
	repoPattern = namePattern{
		field: "repository name",
		re:    regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,99}$`),
	}
	topicPattern = namePattern{
		field: "topic",
		re:    regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,49}$`),
	}
	workflowFilePattern = namePattern{
		field:  "workflow file name",
		re:     regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*\.(yml|yaml)$`),
		reason: "must be alphanumeric with .yml or .yaml extension",
	}
)

func (p namePattern) check(value string) error {
	if p.re.MatchString(value) {
		return nil
	}
	reason := p.reason
	if reason == "" {
		reason = "must match pattern " + p.re.String()
	}
	return &ValidationError{Field: p.field, Value: value, Reason: reason}
}

// ValidateWorkflowFile checks a workflow filename supplied as a filter entry
func ValidateWorkflowFile(name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return &ValidationError{Field: "workflow file name", Value: name, Reason: "path traversal is not allowed"}
	}
	return workflowFilePattern.check(name)
}

func validateToken(token string) error {
	if token == "" {
		return &ValidationError{Field: "GitHub token", Reason: "set the " + TokenEnvVar + " environment variable"}
	}
	if len(token) < 20 {
		return &ValidationError{Field: "GitHub token", Reason: "appears to be invalid (too short)"}
	}
	return nil
}
