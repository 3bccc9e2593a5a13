package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/actions"
	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/service"
)

const testWallet = "0x00000000000000000000000000000000000000aa"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type fakePositions struct {
	view       service.PositionView
	err        error
	refreshErr error
	tracked    []string
	refreshed  int
}

func (f *fakePositions) Positions(ctx context.Context, wallet string) (service.PositionView, error) {
	return f.view, f.err
}

func (f *fakePositions) Refresh(ctx context.Context, wallet string) (service.PositionView, error) {
	f.refreshed++
	return f.view, f.refreshErr
}

func (f *fakePositions) Track(wallet string) {
	f.tracked = append(f.tracked, wallet)
}

type fakeRunner struct {
	rec domain.ActionRecord
	err error

	stakeReq   *actions.StakeRequest
	claimReq   *actions.ClaimRequest
	unstakeReq *actions.UnstakeRequest
}

func (f *fakeRunner) Stake(ctx context.Context, req actions.StakeRequest) (domain.ActionRecord, error) {
	f.stakeReq = &req
	return f.rec, f.err
}

func (f *fakeRunner) Claim(ctx context.Context, req actions.ClaimRequest) (domain.ActionRecord, error) {
	f.claimReq = &req
	return f.rec, f.err
}

func (f *fakeRunner) Unstake(ctx context.Context, req actions.UnstakeRequest) (domain.ActionRecord, error) {
	f.unstakeReq = &req
	return f.rec, f.err
}

type fakeJournal struct {
	records []domain.ActionRecord
	err     error
	opts    domain.ListOpts
}

func (f *fakeJournal) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	f.opts = opts
	return f.records, f.err
}

type fakeProfiles struct {
	profile domain.UserProfile
	err     error
	updated *service.ProfileUpdate
}

func (f *fakeProfiles) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	return f.profile, f.err
}

func (f *fakeProfiles) Update(ctx context.Context, req service.ProfileUpdate) (domain.UserProfile, error) {
	f.updated = &req
	return f.profile, f.err
}

// --- helpers tests ---

func TestWriteServiceErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", domain.Validationf("amount", "must be positive"), http.StatusBadRequest, "invalid amount: must be positive"},
		{"revert", &domain.RevertError{Reason: "stake cap exceeded"}, http.StatusUnprocessableEntity, "execution reverted: stake cap exceeded"},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, "rate limit exceeded"},
		{"in flight", domain.ErrActionInFlight, http.StatusConflict, "an identical action is already in flight"},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not found"},
		{"internal stays generic", errors.New("pq: connection refused"), http.StatusInternalServerError, "failed to do the thing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)

			writeServiceError(rr, req, testLogger(), tc.err, "failed to do the thing")

			assert.Equal(t, tc.wantStatus, rr.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.wantBody, body["error"])
		})
	}
}

func TestWriteServiceErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)

	writeServiceError(rr, req, testLogger(), errors.New("dial tcp 10.0.0.1:5432: refused"), "failed to list positions")

	assert.NotContains(t, rr.Body.String(), "10.0.0.1")
}

func TestParseListOptsDefaultsAndCaps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/actions?wallet="+testWallet, nil)
	opts := parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/actions?limit=9999&offset=20", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
}

// --- positions handler ---

func TestListPositionsRequiresWallet(t *testing.T) {
	h := NewPositionHandler(&fakePositions{}, testLogger())

	rr := httptest.NewRecorder()
	h.ListPositions(rr, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ListPositions(rr, httptest.NewRequest(http.MethodGet, "/api/positions?wallet=not-an-address", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListPositionsTracksWalletAndReturnsView(t *testing.T) {
	fp := &fakePositions{view: service.PositionView{Degraded: true}}
	h := NewPositionHandler(fp, testLogger())

	rr := httptest.NewRecorder()
	h.ListPositions(rr, httptest.NewRequest(http.MethodGet, "/api/positions?wallet="+testWallet, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{testWallet}, fp.tracked)

	var view struct {
		Positions []domain.Position `json:"positions"`
		Degraded  bool              `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.NotNil(t, view.Positions, "nil slice must serialize as []")
	assert.Empty(t, view.Positions)
	assert.True(t, view.Degraded)
}

func TestRefreshPositionsHitsService(t *testing.T) {
	fp := &fakePositions{}
	h := NewPositionHandler(fp, testLogger())

	rr := httptest.NewRecorder()
	h.RefreshPositions(rr, httptest.NewRequest(http.MethodPost, "/api/positions/refresh?wallet="+testWallet, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, fp.refreshed)
}

// --- actions handler ---

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data)))
	return rr
}

func TestStakeConfirmedReturns201(t *testing.T) {
	fr := &fakeRunner{rec: domain.ActionRecord{
		ID:     "act-1",
		Kind:   domain.ActionKindStake,
		Status: domain.ActionStatusConfirmed,
		TxHash: "0xabc",
	}}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Stake, "/api/actions/stake", actions.StakeRequest{
		PackageID: 3,
		Amount:    domain.TokenAmountFromInt64(100),
		Referrer:  "0x00000000000000000000000000000000000000bb",
	})

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Action domain.ActionRecord `json:"action"`
		Error  string              `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "act-1", resp.Action.ID)
	assert.Empty(t, resp.Error)

	require.NotNil(t, fr.stakeReq)
	assert.Equal(t, uint64(3), fr.stakeReq.PackageID)
}

func TestStakeRejectedWithoutErrorReturns200(t *testing.T) {
	fr := &fakeRunner{rec: domain.ActionRecord{Status: domain.ActionStatusRejected}}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Stake, "/api/actions/stake", actions.StakeRequest{})

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStakeRevertedReturns422WithRecord(t *testing.T) {
	fr := &fakeRunner{
		rec: domain.ActionRecord{Status: domain.ActionStatusReverted, TxHash: "0xdead"},
		err: &domain.RevertError{Reason: "stake cap exceeded"},
	}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Stake, "/api/actions/stake", actions.StakeRequest{})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Action domain.ActionRecord `json:"action"`
		Error  string              `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "0xdead", resp.Action.TxHash)
	assert.Contains(t, resp.Error, "stake cap exceeded")
}

func TestStakeReceiptPendingReturns202(t *testing.T) {
	fr := &fakeRunner{
		rec: domain.ActionRecord{Status: domain.ActionStatusSubmitted, TxHash: "0xfeed"},
		err: context.DeadlineExceeded,
	}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Stake, "/api/actions/stake", actions.StakeRequest{})

	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), "receipt not yet available")
}

func TestStakeValidationErrorReturns400(t *testing.T) {
	fr := &fakeRunner{err: domain.Validationf("referrer", "required")}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Stake, "/api/actions/stake", actions.StakeRequest{})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "referrer")
}

func TestStakeRejectsMalformedBody(t *testing.T) {
	h := NewActionsHandler(&fakeRunner{}, &fakeJournal{}, testLogger())

	rr := httptest.NewRecorder()
	h.Stake(rr, httptest.NewRequest(http.MethodPost, "/api/actions/stake", bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClaimAndUnstakePassRequestsThrough(t *testing.T) {
	fr := &fakeRunner{rec: domain.ActionRecord{Status: domain.ActionStatusConfirmed}}
	h := NewActionsHandler(fr, &fakeJournal{}, testLogger())

	rr := postJSON(t, h.Claim, "/api/actions/claim", actions.ClaimRequest{StakeIndex: 7})
	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, fr.claimReq)
	assert.Equal(t, uint64(7), fr.claimReq.StakeIndex)

	rr = postJSON(t, h.Unstake, "/api/actions/unstake", actions.UnstakeRequest{
		StakeIndex: 7,
		Amount:     domain.TokenAmountFromInt64(50),
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, fr.unstakeReq)
	assert.Equal(t, uint64(7), fr.unstakeReq.StakeIndex)
}

func TestListActionsReturnsJournal(t *testing.T) {
	fj := &fakeJournal{records: []domain.ActionRecord{
		{ID: "act-2", Kind: domain.ActionKindClaim, Status: domain.ActionStatusConfirmed},
	}}
	h := NewActionsHandler(&fakeRunner{}, fj, testLogger())

	rr := httptest.NewRecorder()
	h.ListActions(rr, httptest.NewRequest(http.MethodGet, "/api/actions?wallet="+testWallet+"&limit=10", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, fj.opts.Limit)

	var resp struct {
		Actions []domain.ActionRecord `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "act-2", resp.Actions[0].ID)
}

// --- profile handler ---

func TestGetProfileValidatesWallet(t *testing.T) {
	h := NewProfileHandler(&fakeProfiles{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/profile/garbage", nil)
	req.SetPathValue("wallet", "garbage")

	rr := httptest.NewRecorder()
	h.GetProfile(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateProfileFillsWalletFromPath(t *testing.T) {
	fp := &fakeProfiles{profile: domain.UserProfile{Wallet: testWallet}}
	h := NewProfileHandler(fp, testLogger())

	body, _ := json.Marshal(service.ProfileUpdate{Nickname: "staker"})
	req := httptest.NewRequest(http.MethodPut, "/api/profile/"+testWallet, bytes.NewReader(body))
	req.SetPathValue("wallet", testWallet)

	rr := httptest.NewRecorder()
	h.UpdateProfile(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, fp.updated)
	assert.Equal(t, testWallet, fp.updated.Wallet)
}

func TestUpdateProfileRejectsWalletMismatch(t *testing.T) {
	fp := &fakeProfiles{}
	h := NewProfileHandler(fp, testLogger())

	body, _ := json.Marshal(service.ProfileUpdate{Wallet: "0x00000000000000000000000000000000000000cc"})
	req := httptest.NewRequest(http.MethodPut, "/api/profile/"+testWallet, bytes.NewReader(body))
	req.SetPathValue("wallet", testWallet)

	rr := httptest.NewRecorder()
	h.UpdateProfile(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, fp.updated)
}
