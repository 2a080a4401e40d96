package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job request identifiers.
	FieldJobID = "job_id"
	// FieldWorkItemID is the standardized structured logging key for work item identifiers.
	FieldWorkItemID = "work_item"
	// FieldStepIndex is the standardized structured logging key for workflow step positions.
	FieldStepIndex = "step_index"
	// FieldService is the standardized structured logging key for worker service identifiers.
	FieldService = "service"
	// FieldUsername is the standardized structured logging key for the acting user.
	FieldUsername = "username"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey string

const (
	jobIDKey         contextKey = "job_id"
	workItemIDKey    contextKey = "work_item"
	serviceIDKey     contextKey = "service"
	correlationIDKey contextKey = "correlation_id"
)

// WithJobID annotates context with the job request identifier.
func WithJobID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, requestID)
}

// JobIDFromContext extracts the job request identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorkItemID annotates context with the work item identifier.
func WithWorkItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workItemIDKey, id)
}

// WorkItemIDFromContext extracts the work item identifier if present.
func WorkItemIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(workItemIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithServiceID annotates context with the worker service identifier.
func WithServiceID(ctx context.Context, serviceID string) context.Context {
	if serviceID == "" {
		return ctx
	}
	return context.WithValue(ctx, serviceIDKey, serviceID)
}

// ServiceIDFromContext extracts the worker service identifier if present.
func ServiceIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(serviceIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCorrelationID annotates context with a correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := WorkItemIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldWorkItemID, id))
	}
	if service, ok := ServiceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldService, service))
	}
	if rid, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
