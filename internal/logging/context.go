// Package logging carries run and repository identifiers through context
// into every slog record.
package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RunIDKey is the context key for the id of a sync run.
	RunIDKey ContextKey = "run_id"
	// RepoKey is the context key for the repository being processed.
	RepoKey ContextKey = "repo"
)

// ContextHandler is an slog.Handler that copies run_id and repo from the
// context onto each record. A repo attribute set on the record wins.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{
		handler: handler,
	}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds context attributes to the record and passes it on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if runID, ok := RunID(ctx); ok {
		r.AddAttrs(slog.String(string(RunIDKey), runID))
	}
	if repo, ok := Repo(ctx); ok && !hasAttr(r, string(RepoKey)) {
		r.AddAttrs(slog.String(string(RepoKey), repo))
	}

	return h.handler.Handle(ctx, r)
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = a.Key == key
		return !found
	})
	return found
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		handler: h.handler.WithAttrs(attrs),
	}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		handler: h.handler.WithGroup(name),
	}
}

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// RunID retrieves the run ID from context.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RunIDKey).(string)
	return id, ok
}

// WithRepo tags the context with the full name of a target repository.
func WithRepo(ctx context.Context, fullName string) context.Context {
	return context.WithValue(ctx, RepoKey, fullName)
}

// Repo retrieves the repository full name from context.
func Repo(ctx context.Context) (string, bool) {
	repo, ok := ctx.Value(RepoKey).(string)
	return repo, ok
}

// NewRunID generates a new UUID-based run ID.
func NewRunID() string {
	return uuid.New().String()
}
