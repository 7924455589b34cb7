package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/relay"
)

// CustodyService funds accounts on operator request.
type CustodyService interface {
	Deposit(ctx context.Context, owner common.Address, amount *big.Int) (*big.Int, error)
	Approve(ctx context.Context, owner common.Address, amount *big.Int) error
}

// Migrator launches a funded market.
type Migrator interface {
	Migrate(ctx context.Context, market common.Address) (relay.Result, error)
}

// AdminHandler serves the operator endpoints. archives and audit may be nil
// when blob storage or the audit log are not configured.
type AdminHandler struct {
	custody  CustodyService
	migrator Migrator
	archives domain.BlobReader
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(custody CustodyService, migrator Migrator, archives domain.BlobReader, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		custody:  custody,
		migrator: migrator,
		archives: archives,
		audit:    audit,
		logger:   logHandler(logger, "admin"),
	}
}

type fundRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

func (h *AdminHandler) decodeFund(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, nil, false
	}
	if !common.IsHexAddress(req.Owner) {
		writeError(w, http.StatusBadRequest, "invalid owner")
		return common.Address{}, nil, false
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return common.Address{}, nil, false
	}
	return common.HexToAddress(req.Owner), amount, true
}

// Deposit credits the reserve asset to an account.
// POST /api/admin/deposits
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	owner, amount, ok := h.decodeFund(w, r)
	if !ok {
		return
	}
	bal, err := h.custody.Deposit(r.Context(), owner, amount)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":           owner.Hex(),
		"balance":         bal.String(),
		"balance_display": domain.FormatUnits(bal, 6),
	})
}

// Approve sets the allowance an account grants the engine.
// POST /api/admin/allowances
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	owner, amount, ok := h.decodeFund(w, r)
	if !ok {
		return
	}
	if err := h.custody.Approve(r.Context(), owner, amount); err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"allowance": amount.String(),
	})
}

// Migrate launches a funded market.
// POST /api/admin/markets/{address}/migrate
func (h *AdminHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	res, err := h.migrator.Migrate(r.Context(), addr)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res.JSON())
}

type archiveJSON struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives lists exported event files.
// GET /api/admin/archives?prefix=events/2026/
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archive storage not configured")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "events/"
	}
	infos, err := h.archives.List(r.Context(), prefix)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	out := make([]archiveJSON, len(infos))
	for i, info := range infos {
		out[i] = archiveJSON{Path: info.Path, Size: info.Size, LastModified: info.LastModified}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

// ListAudit returns audit log entries newest first.
// GET /api/admin/audit?limit=50
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
