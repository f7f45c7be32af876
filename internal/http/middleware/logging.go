package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/utils/response"
)

// RequestIDHeader is honored on requests and always set on responses.
const RequestIDHeader = "X-Request-ID"

// RequestLogger gives every request an id and a child logger, writes one
// access log line when the request finishes and turns panics into 500s.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			log := base.With(
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic serving request", zap.Any("panic", rec), zap.Stack("stack"))
					if ww.Status() == 0 {
						response.Error(ww, http.StatusInternalServerError, "internal server error")
					}
				}
				log.Info("request completed",
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), log)))
		})
	}
}
