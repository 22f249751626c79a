package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are polled by the popup and logged at debug level.
var quietPaths = map[string]bool{
	"/health":       true,
	"/api/v1/tabs":  true,
	"/openapi.json": true,
}

// requestLogger logs one line per request and echoes the request ID so
// clients can quote it.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set(middleware.RequestIDHeader, reqID)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		msg := "http request"
		switch {
		case quietPaths[r.URL.Path]:
			level = slog.LevelDebug
		case strings.HasPrefix(r.URL.Path, "/api/v1/events"):
			msg = "event stream closed"
		}
		slog.Log(r.Context(), level, msg,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", reqID,
		)
	})
}
