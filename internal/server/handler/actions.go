package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starstake/stakeboard/internal/actions"
	"github.com/starstake/stakeboard/internal/domain"
)

// ActionRunner defines the orchestrator methods the actions handler requires.
type ActionRunner interface {
	Stake(ctx context.Context, req actions.StakeRequest) (domain.ActionRecord, error)
	Claim(ctx context.Context, req actions.ClaimRequest) (domain.ActionRecord, error)
	Unstake(ctx context.Context, req actions.UnstakeRequest) (domain.ActionRecord, error)
}

// ActionJournal defines the journal read the actions handler requires.
type ActionJournal interface {
	ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error)
}

// ActionsHandler serves write actions and the action journal.
type ActionsHandler struct {
	runner  ActionRunner
	journal ActionJournal
	logger  *slog.Logger
}

// NewActionsHandler creates an ActionsHandler with the given orchestrator,
// journal store and logger.
func NewActionsHandler(runner ActionRunner, journal ActionJournal, logger *slog.Logger) *ActionsHandler {
	return &ActionsHandler{runner: runner, journal: journal, logger: logger}
}

// actionResponse wraps a journal record, with an optional note when the
// outcome is not yet final.
type actionResponse struct {
	Action domain.ActionRecord `json:"action"`
	Error  string              `json:"error,omitempty"`
}

// Stake submits a stake transaction for the configured signer wallet.
// POST /api/actions/stake
func (h *ActionsHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req actions.StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.runner.Stake(r.Context(), req)
	h.respond(w, r, rec, err, "failed to stake")
}

// Claim submits a reward claim for one staking position.
// POST /api/actions/claim
func (h *ActionsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req actions.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.runner.Claim(r.Context(), req)
	h.respond(w, r, rec, err, "failed to claim")
}

// Unstake submits a principal withdrawal for one staking position.
// POST /api/actions/unstake
func (h *ActionsHandler) Unstake(w http.ResponseWriter, r *http.Request) {
	var req actions.UnstakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.runner.Unstake(r.Context(), req)
	h.respond(w, r, rec, err, "failed to unstake")
}

// respond maps an orchestrator outcome to an HTTP response. Confirmed
// actions are 201, mined-but-reverted ones are 422 with the reason, and a
// submitted transaction whose receipt never arrived is 202 so the client
// knows to watch the journal.
func (h *ActionsHandler) respond(w http.ResponseWriter, r *http.Request, rec domain.ActionRecord, err error, fallback string) {
	if err == nil {
		status := http.StatusCreated
		if rec.Status == domain.ActionStatusRejected {
			status = http.StatusOK
		}
		writeJSON(w, status, actionResponse{Action: rec})
		return
	}

	if rec.TxHash != "" {
		if domain.IsRevert(err) {
			var re *domain.RevertError
			errors.As(err, &re)
			writeJSON(w, http.StatusUnprocessableEntity, actionResponse{Action: rec, Error: re.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, actionResponse{Action: rec, Error: "receipt not yet available"})
		return
	}

	writeServiceError(w, r, h.logger, err, fallback)
}

// listActionsResponse wraps the action journal response.
type listActionsResponse struct {
	Actions []domain.ActionRecord `json:"actions"`
}

// ListActions returns the journal for a wallet, newest first.
// GET /api/actions?wallet=0x...
func (h *ActionsHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	records, err := h.journal.ListByWallet(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list actions")
		return
	}

	if records == nil {
		records = []domain.ActionRecord{}
	}

	writeJSON(w, http.StatusOK, listActionsResponse{Actions: records})
}
