package reliability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/database"
	testingpkg "github.com/polkapulse/vault/internal/testing"
)

func newHealthFixture(t *testing.T) (*DatabaseHealthService, *database.DB) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "vault")
	t.Cleanup(cleanup)

	backups := NewBackupService(
		map[string]*database.DB{"vault": db},
		filepath.Join(t.TempDir(), "backups"),
		zerolog.Nop(),
	)

	return NewDatabaseHealthService(db, backups, zerolog.Nop()), db
}

func TestCheckAndRecover_HealthyDatabasePassesUntouched(t *testing.T) {
	service, db := newHealthFixture(t)

	require.NoError(t, service.CheckAndRecover())
	assert.Same(t, db, service.DB(), "healthy database must not be swapped")
}

func TestGetMetrics_ReportsSizeAndIntegrity(t *testing.T) {
	service, _ := newHealthFixture(t)

	metrics, err := service.GetMetrics()
	require.NoError(t, err)

	assert.Equal(t, "vault", metrics.Name)
	assert.Greater(t, metrics.SizeMB, 0.0)
	assert.True(t, metrics.IntegrityCheckPassed)
	assert.False(t, metrics.LastIntegrityCheck.IsZero())
}

func TestCopyFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "nested", "dst.db")

	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, CopyFile(src, dst))

	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), copied)
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent.db"), filepath.Join(dir, "out.db"))
	require.Error(t, err)
}
