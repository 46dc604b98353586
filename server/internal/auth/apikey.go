package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ModeAPIKey is the only mode that enforces a key.
const ModeAPIKey = "apikey"

// APIKey returns HTTP middleware that enforces API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests pass through.
//   - Otherwise the value of header is compared to key in constant time.
//   - A missing or incorrect key returns 401 with a JSON error body and calls
//     onFail, if set.
//
// Paths listed in exempt skip the check (e.g. "/metrics").
func APIKey(mode, header, key string, onFail func(), exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != ModeAPIKey || key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range exempt {
				if r.URL.Path == p || strings.HasPrefix(r.URL.Path, p+"/") {
					next.ServeHTTP(w, r)
					return
				}
			}
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				if onFail != nil {
					onFail()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
