package huddle

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/putto11262002/huddle/pkg/logger"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// requestLogger tags each request with an id and logs it once the response is written.
func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := xid.New().String()
			ctx := logger.NewContextWithID(r.Context(), id)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-Id", id)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			l.Info("http request",
				zap.String("id", id),
				zap.String("method", r.Method),
				zap.String("uri", r.URL.RequestURI()),
				zap.String("ip", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
