package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorResponse is the body of every non-2xx response. Kind is the stable
// failure code; Stage is set for relay rejections.
type errorResponse struct {
	Error string       `json:"error"`
	Kind  string       `json:"kind,omitempty"`
	Stage domain.Stage `json:"stage,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps err to a status code and writes it with its failure kind.
// Unknown errors are logged and reported as a bare 500.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := domain.FailureKind(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse{Error: "internal server error", Kind: kind})
		return
	}

	resp := errorResponse{Error: err.Error(), Kind: kind}
	var rej *domain.RejectError
	if errors.As(err, &rej) {
		resp.Stage = rej.Stage
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrRelayerMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidNonce),
		errors.Is(err, domain.ErrMarketExists),
		errors.Is(err, domain.ErrAlreadyLaunched),
		errors.Is(err, domain.ErrNotLaunching),
		errors.Is(err, domain.ErrInvariantBroken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInvalidIntent),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrGoalNotReached),
		errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0. since and until accept RFC 3339.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

// pathAddress reads an address path parameter, writing a 400 when it is
// malformed.
func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, v))
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// queryAmount reads a required base-unit integer query parameter.
func queryAmount(w http.ResponseWriter, r *http.Request, name string) (*big.Int, bool) {
	v := r.URL.Query().Get(name)
	x, ok := new(big.Int).SetString(v, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, v))
		return nil, false
	}
	return x, true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
