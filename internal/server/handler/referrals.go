package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/domain"
)

// ReferralSource defines the methods that the referrals handler requires.
type ReferralSource interface {
	Summary(ctx context.Context, wallet string) (domain.ReferralSummary, error)
}

// ReferralsHandler serves referral earnings rollups.
type ReferralsHandler struct {
	referrals ReferralSource
	logger    *slog.Logger
}

// NewReferralsHandler creates a ReferralsHandler with the given service and logger.
func NewReferralsHandler(referrals ReferralSource, logger *slog.Logger) *ReferralsHandler {
	return &ReferralsHandler{referrals: referrals, logger: logger}
}

// GetReferrals returns the per-level referral earnings rollup for a wallet.
// GET /api/referrals?wallet=0x...
func (h *ReferralsHandler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	summary, err := h.referrals.Summary(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load referrals")
		return
	}

	if summary.Levels == nil {
		summary.Levels = []domain.LevelSummary{}
	}

	writeJSON(w, http.StatusOK, summary)
}
