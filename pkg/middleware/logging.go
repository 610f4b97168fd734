package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogcore/pkg/logger"
)

// Request headers read by RequestLogging.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderPrincipalID   = "X-Principal-ID"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// RequestLogging tags the request context with a correlation id (taken
// from X-Correlation-ID or generated) and the principal forwarded by the
// token issuer in X-Principal-ID, stores a request-scoped logger for
// logger.FromContext, and logs one line per request. Requests to quiet
// paths are logged at debug level so probes do not flood the log.
func RequestLogging(l *slog.Logger, quiet ...string) func(http.Handler) http.Handler {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			if principal := r.Header.Get(HeaderPrincipalID); principal != "" {
				ctx = logger.WithPrincipalID(ctx, principal)
			}
			reqLogger := logger.WithContext(ctx, l)
			ctx = logger.NewContext(ctx, reqLogger)
			w.Header().Set(HeaderCorrelationID, correlationID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if _, ok := quietPaths[r.URL.Path]; ok {
				level = slog.LevelDebug
			}
			reqLogger.Log(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
