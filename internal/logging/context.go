package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey namespaces values this package stores on a context.
type contextKey string

// runIDKey is the context key for a detection run's correlation ID.
const runIDKey contextKey = "run_id"

// GenerateRunID creates a new unique id for one detection run. Returns the
// first 8 characters of a UUID for readability in log output.
func GenerateRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID returns a new context carrying the given run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ContextWithNewRunID returns a context carrying a newly generated run ID.
//
//	ctx = logging.ContextWithNewRunID(ctx)
func ContextWithNewRunID(ctx context.Context) context.Context {
	return ContextWithRunID(ctx, GenerateRunID())
}

// RunIDFromContext retrieves the run ID from ctx, or "" if none is set.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with the context's run ID attached, if any. Driver.Run
// calls this once per run so every log line it emits carries the same
// run_id field.
//
//	logging.Ctx(ctx).Info().Msg("detection run complete")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}
	return &logger
}

// WithComponent creates a child logger with a component field.
// Use this to create component-specific loggers.
//
//	log := logging.WithComponent("pipeline")
//	log.Info().Msg("run started")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
