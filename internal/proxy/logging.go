package proxy

import (
	"log"
	"net/http"
)

// withLogging logs each request line. Destination URLs and queries arrive
// as encrypted tokens, so the access log never contains a literal
// destination or query.
func withLogging(logger *log.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("REQ %s %s UA=%q From=%s", r.Method, r.URL.Path, r.UserAgent(), r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
