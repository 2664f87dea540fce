package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/breez/payments-rest-api/internal/logger"
)

// APIKeyAuth guards every payment endpoint with a shared secret in the
// x-api-key header. With no secret configured the API refuses to serve
// rather than serve open.
func APIKeyAuth(apiKey string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				log.Error("API", "API_SECRET is not configured, refusing request")
				http.Error(w, "API key authentication is not configured on the server", http.StatusServiceUnavailable)
				return
			}

			provided := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				log.Warn("API", "rejected request with missing or invalid API key: "+r.URL.Path)
				http.Error(w, "Invalid or missing API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
