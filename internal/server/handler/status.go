package handler

import (
	"net/http"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// StatusHandler serves the deployment a relayer must sign against.
type StatusHandler struct {
	Mode   string
	Domain domain.SigningDomain
	Venue  string
}

// NewStatusHandler creates a StatusHandler. d is the domain create intents
// are signed under; market intents reuse its name, version and chain id.
func NewStatusHandler(mode string, d domain.SigningDomain, venue string) *StatusHandler {
	return &StatusHandler{Mode: mode, Domain: d, Venue: venue}
}

// GetStatus responds with the running mode and signing domain.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.Mode,
		"domain_name":     h.Domain.Name,
		"domain_version":  h.Domain.Version,
		"chain_id":        domain.IntString(h.Domain.ChainID),
		"factory":         h.Domain.VerifyingContract.Hex(),
		"liquidity_venue": h.Venue,
	})
}
