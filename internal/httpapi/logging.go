package httpapi

import (
	"expvar"
	"log"
	"net/http"
	"time"
)

var (
	requestsTotal  = expvar.NewInt("http_requests_total")
	requestsFailed = expvar.NewInt("http_requests_failed")
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WithLogging wraps the handler with request logging and expvar counters.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		requestsTotal.Add(1)
		if rec.status >= 500 {
			requestsFailed.Add(1)
		}
		log.Printf("level=info msg=request method=%s path=%s status=%d duration=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
