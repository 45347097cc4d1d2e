package middleware

import (
	"mime"
	"net/http"
)

// RequireJSON rejects requests that carry a body in anything but JSON.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"unsupported_media_type","message":"request body must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
