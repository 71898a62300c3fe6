package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext carries request-scoped fields for one bus command or one
// control-plane request.
type LogContext struct {
	TraceID   string
	SpanID    string
	RequestID string
	Bus       string // sio, rs232
	Device    string // adapter name
	Slot      int    // -1 when not bound to a device
	Command   string // command mnemonic or HTTP route
	ClientIP  string
	StartTime time.Time
}

// NewLogContext returns a LogContext stamped with the current time.
func NewLogContext() *LogContext {
	return &LogContext{Slot: -1, StartTime: time.Now()}
}

// WithContext stores lc in ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext held by ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// Clone returns a shallow copy.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithDevice returns a copy bound to a device slot.
func (lc *LogContext) WithDevice(name string, slot int) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Device = name
		c.Slot = slot
	}
	return c
}

// WithCommand returns a copy with the command set.
func (lc *LogContext) WithCommand(cmd string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Command = cmd
	}
	return c
}

// WithTrace returns a copy carrying trace identifiers.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns the milliseconds elapsed since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func withContext(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 16+len(args))
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	if lc.RequestID != "" {
		out = append(out, KeyRequestID, lc.RequestID)
	}
	if lc.Bus != "" {
		out = append(out, KeyBus, lc.Bus)
	}
	if lc.Device != "" {
		out = append(out, KeyDevice, lc.Device)
	}
	if lc.Slot >= 0 {
		out = append(out, KeySlot, lc.Slot)
	}
	if lc.Command != "" {
		out = append(out, KeyCommand, lc.Command)
	}
	if lc.ClientIP != "" {
		out = append(out, KeyClientIP, lc.ClientIP)
	}
	return append(out, args...)
}
