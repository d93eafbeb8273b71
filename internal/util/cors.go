package util

import (
	"net/http"
	"strings"
)

// WithCORS allows the configured frontend origin. An empty origin allows any.
func WithCORS(origin string, next http.Handler) http.Handler {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case origin == "":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case r.Header.Get("Origin") == origin:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
