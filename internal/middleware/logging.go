package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Logging logs one line per request. Probe endpoints only log at -v=2 so
// orchestrator health checks do not drown purchase traffic.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		rid := GetRequestID(r.Context())
		switch {
		case rw.status >= http.StatusInternalServerError:
			glog.Warningf("[HTTP] %s %s -> %d (%dB, %s) rid=%s", r.Method, r.URL.Path, rw.status, rw.bytes, elapsed, rid)
		case isProbe(r.URL.Path):
			glog.V(2).Infof("[HTTP] %s %s -> %d (%s)", r.Method, r.URL.Path, rw.status, elapsed)
		default:
			glog.Infof("[HTTP] %s %s -> %d (%dB, %s) rid=%s", r.Method, r.URL.Path, rw.status, rw.bytes, elapsed, rid)
		}
	})
}

func isProbe(path string) bool {
	return strings.HasSuffix(path, "/health") || strings.HasSuffix(path, "/ready")
}

// statusRecorder captures the status code and body size written by a handler.
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
