package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/service"
)

// RewardsSource defines the methods that the rewards handler requires.
type RewardsSource interface {
	Summary(ctx context.Context, wallet string) (service.RewardsSummary, error)
}

// RewardsHandler serves live reward projections.
type RewardsHandler struct {
	rewards RewardsSource
	logger  *slog.Logger
}

// NewRewardsHandler creates a RewardsHandler with the given service and logger.
func NewRewardsHandler(rewards RewardsSource, logger *slog.Logger) *RewardsHandler {
	return &RewardsHandler{rewards: rewards, logger: logger}
}

// GetRewards returns the per-position accrual projection for a wallet.
// GET /api/rewards?wallet=0x...
func (h *RewardsHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	summary, err := h.rewards.Summary(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to compute rewards")
		return
	}

	if summary.Positions == nil {
		summary.Positions = []service.RewardAccrual{}
	}

	writeJSON(w, http.StatusOK, summary)
}
