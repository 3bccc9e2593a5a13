package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/service"
)

// ProfileSource defines the methods that the profile handler requires.
type ProfileSource interface {
	Get(ctx context.Context, wallet string) (domain.UserProfile, error)
	Update(ctx context.Context, req service.ProfileUpdate) (domain.UserProfile, error)
}

// ProfileHandler serves user profile reads and signed updates.
type ProfileHandler struct {
	profiles ProfileSource
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler with the given service and logger.
func NewProfileHandler(profiles ProfileSource, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// GetProfile returns the stored profile for a wallet, or a bare default
// when none has been saved yet.
// GET /api/profile/{wallet}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	wallet := strings.ToLower(pathParam(r, "wallet"))
	if !common.IsHexAddress(wallet) {
		writeError(w, http.StatusBadRequest, "wallet is not a valid hex address")
		return
	}

	profile, err := h.profiles.Get(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile stores a signed profile update. The wallet in the path is
// authoritative; a conflicting wallet in the body is rejected rather than
// silently overridden.
// PUT /api/profile/{wallet}
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	wallet := strings.ToLower(pathParam(r, "wallet"))
	if !common.IsHexAddress(wallet) {
		writeError(w, http.StatusBadRequest, "wallet is not a valid hex address")
		return
	}

	var req service.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Wallet == "" {
		req.Wallet = wallet
	} else if !strings.EqualFold(req.Wallet, wallet) {
		writeError(w, http.StatusBadRequest, "wallet in body does not match path")
		return
	}

	profile, err := h.profiles.Update(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
