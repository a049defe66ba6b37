package mlog

import (
	"context"

	"github.com/sing3demons/jwks-server/pkg/logger"
)

// L returns the request-scoped logger stored in ctx, or a detached console logger.
func L(ctx context.Context) *logger.Logger {
	if l, ok := logger.FromContext(ctx); ok {
		return l
	}
	return logger.NewLogger("", "")
}
