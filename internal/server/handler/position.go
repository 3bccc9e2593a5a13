package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Positions(ctx context.Context, wallet string) (service.PositionView, error)
	Refresh(ctx context.Context, wallet string) (service.PositionView, error)
	Track(wallet string)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// ListPositions returns the merged position view for a wallet. Viewing a
// wallet also marks it for background refresh so the next poll cycle keeps
// its data warm.
// GET /api/positions?wallet=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	h.positions.Track(wallet)

	view, err := h.positions.Positions(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list positions")
		return
	}

	if view.Positions == nil {
		view.Positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, view)
}

// RefreshPositions forces an authoritative re-fetch, bypassing the cache.
// Wired to the dashboard's manual refresh button.
// POST /api/positions/refresh?wallet=0x...
func (h *PositionHandler) RefreshPositions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	view, err := h.positions.Refresh(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to refresh positions")
		return
	}

	if view.Positions == nil {
		view.Positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, view)
}
