package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/polkapulse/vault/internal/testing"
)

func newTestService(t *testing.T) (*Service, *Repository, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "config")
	repo := NewRepository(db.Conn(), zerolog.Nop())
	svc := NewService(repo, zerolog.Nop())
	return svc, repo, cleanup
}

func TestService_Get_DefaultWhenUnset(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	value, err := svc.Get("telemetry_poll_minutes")
	require.NoError(t, err)
	assert.Equal(t, 5.0, value)

	value, err = svc.Get("gateway_api_key")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestService_Get_UnknownKeyReturnsNil(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	value, err := svc.Get("no_such_setting")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestService_Get_CoercesStoredNumeric(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("telemetry_smoothing_window", 24.0)
	require.NoError(t, err)

	value, err := svc.Get("telemetry_smoothing_window")
	require.NoError(t, err)
	assert.Equal(t, 24.0, value)
}

func TestService_Get_StringSettingStaysString(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	// "daily" must not go through the float path
	value, err := svc.Get("s3_backup_schedule")
	require.NoError(t, err)
	assert.Equal(t, "daily", value)

	_, err = svc.Set("s3_backup_schedule", "weekly")
	require.NoError(t, err)

	value, err = svc.Get("s3_backup_schedule")
	require.NoError(t, err)
	assert.Equal(t, "weekly", value)
}

func TestService_Set_RejectsUnknownKey(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("no_such_setting", 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown setting")
}

func TestService_Set_StringSettingRejectsNumber(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("gateway_api_key", 42.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects a string")
}

func TestService_Set_NumericSettingRejectsText(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("display_decimals", "lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects a numeric value")
}

func TestService_Set_BoolStoredAsNumeric(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("telemetry_use_ema", true)
	require.NoError(t, err)

	value, err := svc.Get("telemetry_use_ema")
	require.NoError(t, err)
	assert.Equal(t, 1.0, value)
}

func TestService_Set_FirstGatewayKeyFlagsWarmup(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	firstTime, err := svc.Set("gateway_api_key", "key-1")
	require.NoError(t, err)
	assert.True(t, firstTime)

	// Rotation is not first-time setup
	firstTime, err = svc.Set("gateway_api_key", "key-2")
	require.NoError(t, err)
	assert.False(t, firstTime)
}

func TestService_GetAll_MergesStoredOverDefaults(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	_, err := svc.Set("display_decimals", 2.0)
	require.NoError(t, err)

	all, err := svc.GetAll()
	require.NoError(t, err)

	assert.Equal(t, 2.0, all["display_decimals"])
	assert.Equal(t, 5.0, all["telemetry_poll_minutes"])
	assert.GreaterOrEqual(t, len(all), len(SettingDefaults))
}

func TestRepository_TypedGetters(t *testing.T) {
	_, repo, cleanup := newTestService(t)
	defer cleanup()

	// Unset keys fall back
	intVal, err := repo.GetInt("s3_backup_retention_days", 90)
	require.NoError(t, err)
	assert.Equal(t, 90, intVal)

	boolVal, err := repo.GetBool("s3_backup_enabled", false)
	require.NoError(t, err)
	assert.False(t, boolVal)

	// Float-formatted storage still reads back as int
	require.NoError(t, repo.SetFloat("s3_backup_retention_days", 30))
	intVal, err = repo.GetInt("s3_backup_retention_days", 90)
	require.NoError(t, err)
	assert.Equal(t, 30, intVal)

	// Truthy string forms
	require.NoError(t, repo.Set("s3_backup_enabled", "1", nil))
	boolVal, err = repo.GetBool("s3_backup_enabled", false)
	require.NoError(t, err)
	assert.True(t, boolVal)
}

func TestRepository_DeleteIsIdempotent(t *testing.T) {
	_, repo, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, repo.Set("gateway_api_key", "key", nil))
	require.NoError(t, repo.Delete("gateway_api_key"))
	require.NoError(t, repo.Delete("gateway_api_key"))

	value, err := repo.Get("gateway_api_key")
	require.NoError(t, err)
	assert.Nil(t, value)
}
