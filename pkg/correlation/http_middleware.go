package correlation

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Middleware attaches a correlation ID to each request, echoes it in the
// response headers and logs the completed request at a level chosen by status.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := ExtractID(r)
			if id.IsEmpty() {
				id = New()
			}
			clientIP := ClientIP(r)

			ctx := WithCorrelationID(r.Context(), id)
			ctx = WithClientIP(ctx, clientIP)
			r = r.WithContext(ctx)

			w.Header().Set(HTTPHeader, id.String())
			w.Header().Set(HTTPRequestIDHeader, id.String())

			rec := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := logrus.Fields{
				"correlation_id": id.String(),
				"client_ip":      clientIP,
				"method":         r.Method,
				"path":           r.URL.Path,
				"status":         rec.statusCode,
				"duration_ms":    time.Since(start).Milliseconds(),
			}
			switch {
			case rec.statusCode >= 500:
				logger.WithFields(fields).Error("HTTP request completed with server error")
			case rec.statusCode >= 400:
				logger.WithFields(fields).Warn("HTTP request completed with client error")
			default:
				logger.WithFields(fields).Debug("HTTP request completed")
			}
		})
	}
}

// responseWrapper captures the status code. It keeps Hijack working for websocket upgrades.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	w.written = true
	return hj.Hijack()
}

func (w *responseWrapper) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
