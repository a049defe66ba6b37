package logger

import "context"

type ctxKey struct{}

// LoggerKey is the request context key holding the request-scoped *Logger.
var LoggerKey = ctxKey{}

func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

func FromContext(ctx context.Context) (*Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(LoggerKey).(*Logger)
	return l, ok && l != nil
}
