package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/crypto"
)

const maxSignedBody = 64 << 10

// Relayer is an account allowed to submit intents, with the HMAC credentials
// it signs requests with.
type Relayer struct {
	Address common.Address
	Auth    crypto.HMACAuth
}

type relayerKey struct{}

// WithRelayer stores the authenticated relayer address in ctx.
func WithRelayer(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, relayerKey{}, addr)
}

// RelayerFromContext returns the relayer set by RelayerAuth.
func RelayerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(relayerKey{}).(common.Address)
	return addr, ok
}

// RelayerAuth returns middleware that authenticates relayer requests by their
// HMAC headers. The signature covers timestamp, method, path and the raw
// body, and the timestamp must be within maxSkew of the server clock. On
// success the relayer's address is attached to the request context and the
// body is restored for the handler.
func RelayerAuth(relayers []Relayer, maxSkew time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	byKey := make(map[string]Relayer, len(relayers))
	for _, rl := range relayers {
		byKey[rl.Auth.Key] = rl
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl, ok := byKey[r.Header.Get(crypto.HeaderRelayerKey)]
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unknown relayer key")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "read body failed")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = rl.Auth.Verify(r.Method, r.URL.Path, string(body),
				r.Header.Get(crypto.HeaderRelayerTimestamp),
				r.Header.Get(crypto.HeaderRelayerPassphrase),
				r.Header.Get(crypto.HeaderRelayerSignature),
				time.Now(), maxSkew)
			if err != nil {
				logger.WarnContext(r.Context(), "relayer auth rejected",
					slog.String("relayer", rl.Address.Hex()),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusUnauthorized, "invalid relayer signature")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRelayer(r.Context(), rl.Address)))
		})
	}
}
