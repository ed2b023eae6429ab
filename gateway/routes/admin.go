package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"remitlend/core"
)

var pausableModules = []string{"pool", "loans", "oracle"}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (h *handlers) getPauses(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]bool, len(pausableModules))
	for _, module := range pausableModules {
		out[module] = h.protocol.IsPaused(module)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) setPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	receipt, err := h.protocol.SetPaused(r.Context(), caller, chi.URLParam(r, "module"), req.Paused)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Receipt: receipt})
}

// getInfo exposes the module addresses clients need, e.g. the pool address
// lenders approve before depositing.
func (h *handlers) getInfo(w http.ResponseWriter, _ *http.Request) {
	admin, err := h.protocol.Admin()
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"admin":       admin,
		"sequence":    h.protocol.Sequence(),
		"asset":       core.AssetAddress,
		"collateral":  core.CollateralAddress,
		"pool":        core.PoolAddress,
		"loanManager": core.LoanManagerAddress,
		"oracle":      core.OracleAddress,
	})
}
