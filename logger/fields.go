package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across bkingest.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and correlation
	FieldIngestID = "ingest_id"
	FieldJobID    = "job_id"
	FieldDocument = "document"

	// Components
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldOperation = "operation"

	// Bookkeeping entities
	FieldFile        = "file"
	FieldFileID      = "file_id"
	FieldFileType    = "file_type"
	FieldProduction  = "production"
	FieldRunNumber   = "run_number"
	FieldTCK         = "tck"
	FieldLocation    = "location"
	FieldQuality     = "quality"
	FieldEventTypeID = "event_type_id"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Counts and timing
	FieldCount      = "count"
	FieldDurationMS = "duration_ms"

	// Paths
	FieldPath = "path"

	// Segment symbol
	FieldSymbol = "symbol"
	// Segment name of the symbol, for plain-text queries
	FieldSegment = "segment"
)

type contextKey string

const (
	ingestIDKey  contextKey = "logger_ingest_id"
	componentKey contextKey = "logger_component"
)

// WithIngestID adds a document ingest ID to the context for logging
func WithIngestID(ctx context.Context, ingestID string) context.Context {
	return context.WithValue(ctx, ingestIDKey, ingestID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(ingestIDKey).(string); ok && id != "" {
		fields = append(fields, FieldIngestID, id)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext decorates base with the fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type JobRegistrar struct {
//	    log *zap.SugaredLogger
//	}
//
//	func NewJobRegistrar() *JobRegistrar {
//	    return &JobRegistrar{
//	        log: logger.ComponentLogger("ingest.job"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrComponent returns l when non-nil, otherwise the named component logger.
func OrComponent(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return ComponentLogger(name)
}

// IngestIDFromContext returns the ingest ID carried by ctx, or ""
func IngestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ingestIDKey).(string)
	return id
}
