package kp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
)

// RecoverMiddleware catches panics raised outside route handlers, e.g. in global middlewares.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}

			if lg, ok := logger.FromContext(r.Context()); ok {
				lg.Error(logAction.EXCEPTION("panic recovered"), map[string]any{
					"method":   r.Method,
					"path":     r.URL.Path,
					"panic":    err.Error(),
					"duration": time.Since(start).Milliseconds(),
					"stack":    string(debug.Stack()),
				})
				lg.FlushError(http.StatusInternalServerError, "internal_server_error")
			} else {
				log.Printf("panic recovered: %v\n%s", err, debug.Stack())
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "internal_server_error"})
		}()

		next.ServeHTTP(w, r)
	})
}
