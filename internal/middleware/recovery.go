package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/golang/glog"

	"iap-coordinator/pkg/apierror"
	"iap-coordinator/pkg/response"
)

// Recovery turns a handler panic into a 500 response. A panic inside a
// completion callback is not caught here; dispatch.Serial recovers those.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				glog.Errorf("[Recovery] panic in %s %s rid=%s: %v\n%s",
					r.Method, r.URL.Path, GetRequestID(r.Context()), p, debug.Stack())
				response.Error(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
