package logger

import (
	"github.com/teranos/bkingest/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	logger.IxInfow(log, "Job committed", "job_id", id)
//
// This makes logs queryable by segment and keeps messages clean.

func withSymbol(glyph string, keysAndValues []interface{}) []interface{} {
	return append([]interface{}{FieldSymbol, glyph, FieldSegment, sym.Name(glyph)}, keysAndValues...)
}

// IxInfow logs an info message with the ingestion symbol (⨳)
func IxInfow(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.Infow(msg, withSymbol(sym.IX, keysAndValues)...)
	}
}

// ReplicaInfow logs an info message with the replica symbol (⧉)
func ReplicaInfow(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.Infow(msg, withSymbol(sym.Replica, keysAndValues)...)
	}
}

// SpoolInfow logs an info message with the spool symbol (꩜)
func SpoolInfow(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.Infow(msg, withSymbol(sym.Spool, keysAndValues)...)
	}
}

// SpoolWarnw logs a warning with the spool symbol (꩜)
func SpoolWarnw(l *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.Warnw(msg, withSymbol(sym.Spool, keysAndValues)...)
	}
}
