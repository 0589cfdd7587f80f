package domain

import "context"

type ctxKey string

const taskCtxKey ctxKey = "task_id"

// ContextWithTaskID returns a new context carrying the task ID (ULID).
func ContextWithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskCtxKey, taskID)
}

// TaskIDFromContext extracts the task ID from the context.
// Returns empty string if not set.
func TaskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(taskCtxKey).(string); ok {
		return v
	}
	return ""
}
