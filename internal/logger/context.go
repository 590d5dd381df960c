package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context. WithContext attaches one
// to a context.Context, and the *Ctx logging functions read it from there.
type LogContext struct {
	TraceID   string    // correlates log lines across one compound's lifetime
	SpanID    string    // correlates log lines across one operation
	TxnID     uint64    // transaction ID assigned at start_compound, 0 if none yet
	OpIndex   int       // 0-based index of the current operation, -1 if none
	ClientIP  string    // client IP address (without port)
	UID       uint32    // effective user ID
	GID       uint32    // effective group ID
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		OpIndex:   -1,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		TxnID:     lc.TxnID,
		OpIndex:   lc.OpIndex,
		ClientIP:  lc.ClientIP,
		UID:       lc.UID,
		GID:       lc.GID,
		StartTime: lc.StartTime,
	}
}

// WithTxn returns a copy with the transaction ID set
func (lc *LogContext) WithTxn(txnID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TxnID = txnID
	}
	return clone
}

// WithOpIndex returns a copy with the current operation index set
func (lc *LogContext) WithOpIndex(idx int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.OpIndex = idx
	}
	return clone
}

// WithAuth returns a copy with authentication info set
func (lc *LogContext) WithAuth(uid, gid uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UID = uid
		clone.GID = gid
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
