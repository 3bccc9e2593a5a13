package handler

import (
	"net/http"
	"time"

	"github.com/starstake/stakeboard/internal/service"
)

// StatusSource exposes the merged-view health snapshot.
type StatusSource interface {
	Status() service.Status
}

// ChainStatus reports RPC connectivity for the status endpoint.
type ChainStatus interface {
	Connected() bool
}

// StatusHandler serves the operator status endpoint: run mode, uptime,
// source health and the optimistic backlog.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	positions StatusSource
	chain     ChainStatus
}

// NewStatusHandler creates a StatusHandler. chain may be nil when the
// process runs without a configured RPC endpoint.
func NewStatusHandler(mode string, startedAt time.Time, positions StatusSource, chain ChainStatus) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, positions: positions, chain: chain}
}

// GetStatus responds with the current backend mode, uptime and health.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.positions.Status()

	chainConnected := false
	if h.chain != nil {
		chainConnected = h.chain.Connected()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.mode,
		"uptime_seconds":  int64(time.Since(h.startedAt).Seconds()),
		"chain_connected": chainConnected,
		"source":          st.Source,
		"pending_entries": st.PendingEntries,
		"tracked_wallets": st.TrackedWallets,
	})
}
