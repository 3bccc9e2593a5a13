package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/service"
)

// StarSource defines the methods that the stars handler requires.
type StarSource interface {
	Status(ctx context.Context, wallet string) (service.StarProgress, error)
	Tiers() []domain.StarTier
}

// StarsHandler serves star tier progress.
type StarsHandler struct {
	stars  StarSource
	logger *slog.Logger
}

// NewStarsHandler creates a StarsHandler with the given service and logger.
func NewStarsHandler(stars StarSource, logger *slog.Logger) *StarsHandler {
	return &StarsHandler{stars: stars, logger: logger}
}

// starsResponse pairs a wallet's progress with the full tier ladder so the
// dashboard can render the track without a second request.
type starsResponse struct {
	Progress service.StarProgress `json:"progress"`
	Tiers    []domain.StarTier    `json:"tiers"`
}

// GetStars returns star tier progress for a wallet.
// GET /api/stars?wallet=0x...
func (h *StarsHandler) GetStars(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	progress, err := h.stars.Status(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load star status")
		return
	}

	writeJSON(w, http.StatusOK, starsResponse{
		Progress: progress,
		Tiers:    h.stars.Tiers(),
	})
}
