package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/optimizer"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/internal/modules/router"
	"github.com/polkapulse/vault/internal/modules/treasury"
	testingpkg "github.com/polkapulse/vault/internal/testing"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

type stubAdvisor struct{}

func (a *stubAdvisor) AdviseRequest(ctx context.Context, principal *big.Int, projectionPeriods uint32) (optimizer.Request, error) {
	return optimizer.Request{
		Principal:         principal,
		RateABps:          2000,
		RateBBps:          1000,
		PeriodASeconds:    fixedmath.SecondsPerYear,
		PeriodBSeconds:    fixedmath.SecondsPerYear,
		ProjectionPeriods: projectionPeriods,
	}, nil
}

type handlerHarness struct {
	handler *Handler
	router  chi.Router
	assets  *testingpkg.MockAssetSurface
	rewards *testingpkg.MockRewardSource
	service *orchestrator.Service
}

func setupTestHandler(t *testing.T) (*handlerHarness, func()) {
	t.Helper()
	log := zerolog.Nop()

	db, cleanup := testingpkg.NewTestDB(t, "vault")
	conn := db.Conn()

	h := &handlerHarness{
		assets:  testingpkg.NewMockAssetSurface(),
		rewards: testingpkg.NewMockRewardSource(),
	}
	venueA, venueB := testingpkg.NewVenueFixtures()

	ledgerSvc := ledger.NewService(ledger.NewRepository(conn, log), log)
	harvestSvc := harvest.NewService(harvest.NewRepository(conn, log), h.rewards, "vault-pool", log)
	treasurySvc := treasury.NewService(treasury.NewRepository(conn, log), testingpkg.NewMockUnitPurchaser(), log)
	routerSvc := router.NewService(router.NewRepository(conn, log), testingpkg.NewMockRemoteExecutor(), venueA, venueB, "vault-pool", log)

	h.service = orchestrator.NewService(conn, orchestrator.NewRepository(conn, log),
		ledgerSvc, harvestSvc, treasurySvc, routerSvc, h.assets, &stubAdvisor{}, log)
	require.NoError(t, h.service.SetHarvestThreshold(fixedmath.Units(5), 50))

	h.handler = NewHandler(h.service, log)
	h.router = chi.NewRouter()
	// Tests exercise handler behavior, not auth; the operator middleware
	// passes everything through.
	passthrough := func(next http.Handler) http.Handler { return next }
	h.handler.RegisterRoutes(h.router, passthrough)
	h.handler.RegisterGovernanceRoutes(h.router)

	return h, cleanup
}

func (h *handlerHarness) post(t *testing.T, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *handlerHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Contains(t, response, "data")
	return response["data"].(map[string]interface{})
}

func futureDeadline() int64 {
	return time.Now().Add(time.Hour).Unix()
}

func TestHandleDeposit(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	h.assets.SetBalance("alice", fixedmath.Units(1000))
	w := h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "alice",
		"amount":   fixedmath.Units(100).String(),
		"deadline": futureDeadline(),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, fixedmath.Units(100).String(), data["shares_minted"])
	assert.Equal(t, fixedmath.Precision.String(), data["exchange_rate"])

	pulls := h.assets.Pulls()
	require.Len(t, pulls, 1)
	assert.Equal(t, "alice", pulls[0].Account)
}

func TestHandleDeposit_InvalidBody(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/vault/deposit", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeposit_InvalidAmount(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "alice",
		"amount":   "not-a-number",
		"deadline": futureDeadline(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeposit_ValidationMapsTo400(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	// Empty account fails identity validation inside the service
	w := h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "",
		"amount":   fixedmath.Units(10).String(),
		"deadline": futureDeadline(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeposit_PausedMapsTo409(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/governance/pause", map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code)

	h.assets.SetBalance("alice", fixedmath.Units(1000))
	w = h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "alice",
		"amount":   fixedmath.Units(100).String(),
		"deadline": futureDeadline(),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleWithdraw_InsufficientSharesMapsTo409(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/vault/withdraw", map[string]interface{}{
		"account":  "bob",
		"shares":   fixedmath.Units(10).String(),
		"deadline": futureDeadline(),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleWithdraw_RoundTrip(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	h.assets.SetBalance("alice", fixedmath.Units(1000))
	w := h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "alice",
		"amount":   fixedmath.Units(100).String(),
		"deadline": futureDeadline(),
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.post(t, "/vault/withdraw", map[string]interface{}{
		"account":       "alice",
		"shares":        fixedmath.Units(40).String(),
		"min_asset_out": fixedmath.Units(40).String(),
		"deadline":      futureDeadline(),
	})
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, fixedmath.Units(40).String(), data["asset_out"])

	transfers := h.assets.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "alice", transfers[0].Account)
}

func TestHandleRunYieldLoop_BelowThresholdMapsTo409(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	h.rewards.SetPending(fixedmath.Units(1))
	w := h.post(t, "/vault/yield-loop", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRunYieldLoop_Success(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	h.assets.SetBalance("alice", fixedmath.Units(1000))
	w := h.post(t, "/vault/deposit", map[string]interface{}{
		"account":  "alice",
		"amount":   fixedmath.Units(100).String(),
		"deadline": futureDeadline(),
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.post(t, "/governance/fee", map[string]interface{}{
		"fee_rate_bps": 1000,
		"recipient":    "fee-box",
	})
	require.Equal(t, http.StatusOK, w.Code)

	h.rewards.SetPending(fixedmath.Units(10))
	w = h.post(t, "/vault/yield-loop", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, fixedmath.Units(10).String(), data["harvested"])
	assert.Equal(t, fixedmath.Units(1).String(), data["fee"])
	assert.Equal(t, fixedmath.Units(9).String(), data["credited"])

	// The fee payout shows up in the journal and the accrued total
	w = h.get(t, "/vault/fees")
	assert.Equal(t, http.StatusOK, w.Code)
	feesData := decodeData(t, w)
	assert.Equal(t, float64(1), feesData["count"])

	w = h.get(t, "/vault/status")
	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeData(t, w)
	assert.Equal(t, fixedmath.Units(1).String(), status["accrued_fees"])
	assert.Equal(t, false, status["yield_loop_running"])
}

func TestHandleTriggerEpoch_NotReadyMapsTo409(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/vault/epoch", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleGetStatus_Defaults(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.get(t, "/vault/status")
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, false, data["paused"])
	assert.Equal(t, false, data["yield_loop_running"])
	assert.Equal(t, "0", data["accrued_fees"])
	assert.Equal(t, float64(0), data["fee_rate_bps"])
	assert.Equal(t, float64(12), data["compound_periods"])
}

func TestGovernance_PartnerLifecycle(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/governance/partners", map[string]interface{}{
		"partner_id":     "partner-1",
		"boost_rate_bps": 800,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Duplicate registration conflicts
	w = h.post(t, "/governance/partners", map[string]interface{}{
		"partner_id":     "partner-1",
		"boost_rate_bps": 900,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest("DELETE", "/governance/partners/partner-1", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Removing again conflicts
	req = httptest.NewRequest("DELETE", "/governance/partners/partner-1", nil)
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGovernance_ValidationErrors(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/governance/fee", map[string]interface{}{
		"fee_rate_bps": 10001,
		"recipient":    "fee-box",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.post(t, "/governance/threshold", map[string]interface{}{
		"value": "garbage",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.post(t, "/governance/compound-periods", map[string]interface{}{
		"periods": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGovernance_PauseUnpauseCycle(t *testing.T) {
	h, cleanup := setupTestHandler(t)
	defer cleanup()

	w := h.post(t, "/governance/pause", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.get(t, "/vault/status")
	data := decodeData(t, w)
	assert.Equal(t, true, data["paused"])

	w = h.post(t, "/governance/unpause", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.get(t, "/vault/status")
	data = decodeData(t, w)
	assert.Equal(t, false, data["paused"])
}
