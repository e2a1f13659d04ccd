package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging returns a middleware that logs every request.
// It logs the method, path, request id, status and duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			requestID := req.Header.Get(RequestIDHeader)

			resp, err := next.RoundTrip(req)

			duration := time.Since(start).Milliseconds()
			if err != nil {
				logger.Warn("Request failed",
					"method", req.Method,
					"path", req.URL.Path,
					"request_id", requestID,
					"error", err,
					"duration_ms", duration,
				)
				return resp, err
			}
			if resp.StatusCode >= 400 {
				logger.Warn("Request completed with error status",
					"method", req.Method,
					"path", req.URL.Path,
					"request_id", requestID,
					"status", resp.StatusCode,
					"duration_ms", duration,
				)
			} else {
				logger.Debug("Request completed",
					"method", req.Method,
					"path", req.URL.Path,
					"request_id", requestID,
					"status", resp.StatusCode,
					"duration_ms", duration,
				)
			}
			return resp, nil
		})
	}
}
