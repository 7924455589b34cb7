package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by relayer-authenticated requests.
const (
	HeaderRelayerKey        = "LP_RELAYER_API_KEY"
	HeaderRelayerTimestamp  = "LP_RELAYER_TIMESTAMP"
	HeaderRelayerPassphrase = "LP_RELAYER_PASSPHRASE"
	HeaderRelayerSignature  = "LP_RELAYER_SIGNATURE"
)

// HMACAuth holds the credentials a relayer uses to authenticate against the
// relay API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // HMAC secret
	Passphrase string // API passphrase
}

// Headers returns the HTTP headers for a relayer request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderRelayerKey:        h.Key,
		HeaderRelayerTimestamp:  ts,
		HeaderRelayerPassphrase: h.Passphrase,
		HeaderRelayerSignature:  hmacSHA256Base64([]byte(h.Secret), ts+method+path+body),
	}
}

// Verify checks a request signature produced by Headers. The timestamp must
// be within maxSkew of now.
func (h *HMACAuth) Verify(method, path, body, ts, passphrase, signature string, now time.Time, maxSkew time.Duration) error {
	if !hmac.Equal([]byte(passphrase), []byte(h.Passphrase)) {
		return fmt.Errorf("crypto/hmac: passphrase mismatch")
	}
	unixTS, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/hmac: invalid timestamp %q", ts)
	}
	skew := now.Sub(time.Unix(unixTS, 0))
	if skew < -maxSkew || skew > maxSkew {
		return fmt.Errorf("crypto/hmac: timestamp outside %s window", maxSkew)
	}
	want := hmacSHA256Base64([]byte(h.Secret), ts+method+path+body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return fmt.Errorf("crypto/hmac: signature mismatch")
	}
	return nil
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
