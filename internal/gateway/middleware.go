package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseWriterWrapper intercepts WriteHeader to capture the status code
// for logging, mirroring the teacher's ResponseWriterWrapper.
type responseWriterWrapper struct {
	http.ResponseWriter
	writtenStatus int
}

func (w *responseWriterWrapper) WriteHeader(status int) {
	w.writtenStatus = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if w.writtenStatus == 0 {
		w.writtenStatus = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// logRequest logs every request's method, path, duration, and resulting
// status, at a severity keyed off the status code.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(wrapped, r)
		elapsed := time.Since(start)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", float64(elapsed) / float64(time.Millisecond),
			"status", wrapped.writtenStatus,
		}

		switch {
		case wrapped.writtenStatus >= 500:
			slog.Error("request", attrs...)
		case wrapped.writtenStatus >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

// serverHeader stamps every response with the Server header the gateway
// always advertises, regardless of handler or cache path taken.
func serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "objectgw")
		next.ServeHTTP(w, r)
	})
}

// slashFix collapses repeated slashes and trims a trailing slash from the
// request path, matching the teacher's SlashFix.
func slashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")
		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a panicking handler into a 500 response instead of
// crashing the process, matching the teacher's Recoverer.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				slog.Error("panic in handler", "error", rvr)

				if r.Header.Get("Connection") != "Upgrade" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}
