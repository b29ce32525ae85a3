package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/modules/treasury"
	testingpkg "github.com/polkapulse/vault/internal/testing"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// setupTestHandler seeds a treasury with two partners and one settled epoch:
// 10 tokens of reserve bought 101 units, split 51/50 with the odd unit to
// the first registered partner.
func setupTestHandler(t *testing.T) (*Handler, func()) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, cleanup := testingpkg.NewTestDB(t, "vault")
	purchaser := testingpkg.NewMockUnitPurchaser()
	repo := treasury.NewRepository(db.Conn(), logger)
	service := treasury.NewService(repo, purchaser, logger)

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := service.Accumulate(tx, fixedmath.Units(20), 5000, 100); err != nil {
			return err
		}
		if err := service.AddPartner(tx, "partner-1", 500, 100); err != nil {
			return err
		}
		return service.AddPartner(tx, "partner-2", 900, 100)
	})
	require.NoError(t, err)

	purchaser.SetUnitsOut(big.NewInt(101))
	err = database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := service.TriggerEpoch(context.Background(), tx, big.NewInt(100), 100_000)
		return err
	})
	require.NoError(t, err)

	return NewHandler(service, logger), cleanup
}

func TestHandleGetState(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/treasury/state", nil)
	w := httptest.NewRecorder()

	handler.HandleGetState(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Contains(t, response, "data")
	assert.Contains(t, response, "metadata")

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "0", data["reserve"])
	assert.Equal(t, float64(100_000), data["last_epoch_marker"])
	assert.Equal(t, float64(1), data["epoch_count"])

	// next_epoch_at derives from the marker and the configured interval
	interval := data["epoch_interval"].(float64)
	assert.Equal(t, float64(100_000)+interval, data["next_epoch_at"])
}

func TestHandleGetPartners(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/treasury/partners", nil)
	w := httptest.NewRecorder()

	handler.HandleGetPartners(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])

	// Registration order, remainder credited to the first partner
	partners := data["partners"].([]interface{})
	first := partners[0].(map[string]interface{})
	assert.Equal(t, "partner-1", first["partner_id"])
	assert.Equal(t, float64(500), first["boost_rate_bps"])
	assert.Equal(t, true, first["active"])
	assert.Equal(t, "51", first["lifetime_units"])

	second := partners[1].(map[string]interface{})
	assert.Equal(t, "partner-2", second["partner_id"])
	assert.Equal(t, "50", second["lifetime_units"])
}

func TestHandleGetEpochs(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/treasury/epochs", nil)
	w := httptest.NewRecorder()

	handler.HandleGetEpochs(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])

	epochs := data["epochs"].([]interface{})
	epoch := epochs[0].(map[string]interface{})
	assert.Equal(t, "10000000000000000000", epoch["reserve_spent"])
	assert.Equal(t, "101", epoch["units_purchased"])
	assert.Equal(t, float64(2), epoch["partner_count"])
	assert.Equal(t, "50", epoch["per_partner"])
	assert.Equal(t, "1", epoch["remainder"])
	assert.Equal(t, float64(100_000), epoch["settled_at"])
}

func TestHandleGetEpochPayouts(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest("GET", "/treasury/epochs/1/payouts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["epoch_id"])
	assert.Equal(t, float64(2), data["count"])

	payouts := data["payouts"].([]interface{})
	first := payouts[0].(map[string]interface{})
	assert.Equal(t, "partner-1", first["partner_id"])
	assert.Equal(t, "51", first["units"])
}

func TestHandleGetEpochPayouts_InvalidID(t *testing.T) {
	handler, cleanup := setupTestHandler(t)
	defer cleanup()

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest("GET", "/treasury/epochs/not-a-number/payouts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
