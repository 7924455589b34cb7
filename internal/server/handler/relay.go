package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/relay"
	"github.com/alanyoungcy/launchpad/internal/server/middleware"
)

// RelayExecutor runs relayed intents.
type RelayExecutor interface {
	Create(ctx context.Context, req relay.CreateRequest) (relay.Result, error)
	Buy(ctx context.Context, req relay.BuyRequest) (relay.Result, error)
	Sell(ctx context.Context, req relay.SellRequest) (relay.Result, error)
	Preflight(ctx context.Context, market common.Address, intent domain.Intent, sig []byte, relayer common.Address) (common.Address, error)
}

// RelayHandler serves the relayer endpoints. The submitting relayer is the
// account resolved by the relayer authentication middleware, never a field
// of the body.
type RelayHandler struct {
	exec   RelayExecutor
	logger *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(exec RelayExecutor, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{exec: exec, logger: logHandler(logger, "relay")}
}

// Create executes a signed Create intent.
// POST /api/relay/create
func (h *RelayHandler) Create(w http.ResponseWriter, r *http.Request) {
	relayer, ok := h.relayer(w, r)
	if !ok {
		return
	}
	var body relay.CreateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.Request(relayer)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) (relay.Result, error) { return h.exec.Create(ctx, req) })
}

// Buy executes a signed Buy intent.
// POST /api/relay/buy
func (h *RelayHandler) Buy(w http.ResponseWriter, r *http.Request) {
	relayer, ok := h.relayer(w, r)
	if !ok {
		return
	}
	var body relay.BuyBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.Request(relayer)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) (relay.Result, error) { return h.exec.Buy(ctx, req) })
}

// Sell executes a signed Sell intent.
// POST /api/relay/sell
func (h *RelayHandler) Sell(w http.ResponseWriter, r *http.Request) {
	relayer, ok := h.relayer(w, r)
	if !ok {
		return
	}
	var body relay.SellBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.Request(relayer)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	h.respond(w, r, func(ctx context.Context) (relay.Result, error) { return h.exec.Sell(ctx, req) })
}

// Verify runs signature, deadline, relayer and nonce checks for an intent
// without executing it. The body has the same shape as the matching
// execution endpoint.
// POST /api/relay/verify/{kind}
func (h *RelayHandler) Verify(w http.ResponseWriter, r *http.Request) {
	kind := domain.IntentKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "unknown intent kind "+string(kind))
		return
	}
	relayer, ok := h.relayer(w, r)
	if !ok {
		return
	}

	var (
		market common.Address
		intent domain.Intent
		sig    []byte
		err    error
	)
	switch kind {
	case domain.IntentCreate:
		var body relay.CreateBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var req relay.CreateRequest
		req, err = body.Request(relayer)
		intent, sig = req.Intent, req.Signature
	case domain.IntentBuy:
		var body relay.BuyBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var req relay.BuyRequest
		req, err = body.Request(relayer)
		market, intent, sig = req.Market, req.Intent, req.Signature
	case domain.IntentSell:
		var body relay.SellBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var req relay.SellRequest
		req, err = body.Request(relayer)
		market, intent, sig = req.Market, req.Intent, req.Signature
	}
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}

	signer, err := h.exec.Preflight(r.Context(), market, intent, sig, relayer)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"signer": signer.Hex(),
		"nonce":  intent.IntentNonce(),
	})
}

func (h *RelayHandler) relayer(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := middleware.RelayerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "relayer not authenticated")
		return common.Address{}, false
	}
	return addr, true
}

func (h *RelayHandler) respond(w http.ResponseWriter, r *http.Request, run func(context.Context) (relay.Result, error)) {
	res, err := run(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res.JSON())
}
