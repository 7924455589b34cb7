package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/alanyoungcy/launchpad/internal/crypto"
)

// CORS returns middleware that sets CORS headers for the allowed origins.
// If allowedOrigins is empty, all origins are allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type", "Authorization", "X-API-Key",
			crypto.HeaderRelayerKey,
			crypto.HeaderRelayerTimestamp,
			crypto.HeaderRelayerPassphrase,
			crypto.HeaderRelayerSignature,
		},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         86400,
	})
}
