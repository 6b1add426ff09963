package middleware

import "net/http"

// APIKey returns a middleware that rejects requests whose X-Api-Key header
// (or api_key query parameter) doesn't match key. A blank key disables the
// check entirely, matching blrec's optional api_key web setting.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Api-Key")
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got != key {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
