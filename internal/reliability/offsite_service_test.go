package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/events"
	testingpkg "github.com/polkapulse/vault/internal/testing"
	"github.com/polkapulse/vault/internal/version"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeStore is an in-memory ObjectStore
type fakeStore struct {
	objects map[string]fakeObject
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]fakeObject)}
}

func (s *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = fakeObject{data: data, modified: time.Now()}
	return nil
}

func (s *fakeStore) List(_ context.Context, prefix string) ([]StoredObject, error) {
	out := make([]StoredObject, 0, len(s.objects))
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, StoredObject{
			Key:          key,
			SizeBytes:    int64(len(obj.data)),
			LastModified: obj.modified,
		})
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type fakeConfig map[string]interface{}

func (c fakeConfig) Get(key string) (interface{}, error) {
	return c[key], nil
}

func newOffsiteFixture(t *testing.T, config fakeConfig, eventManager *events.Manager) (*OffsiteBackupService, *fakeStore) {
	t.Helper()

	databases := make(map[string]*database.DB)
	for _, name := range []string{"vault", "cache"} {
		db, cleanup := testingpkg.NewTestDB(t, name)
		t.Cleanup(cleanup)
		databases[name] = db
	}

	backups := NewBackupService(databases, filepath.Join(t.TempDir(), "backups"), zerolog.Nop())
	store := newFakeStore()

	service := NewOffsiteBackupService(backups, config, eventManager, t.TempDir(), zerolog.Nop())
	service.newStore = func() (ObjectStore, error) { return store, nil }

	return service, store
}

// readArchive unpacks an uploaded tar.gz and decodes its manifest
func readArchive(t *testing.T, data []byte) ([]string, BackupMetadata) {
	t.Helper()

	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gzipReader.Close()

	var names []string
	var metadata BackupMetadata

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		names = append(names, header.Name)
		if header.Name == "backup-metadata.json" {
			require.NoError(t, json.NewDecoder(tarReader).Decode(&metadata))
		}
	}

	return names, metadata
}

func TestCreateAndUploadBackup_ArchivesFullSet(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{}, nil)

	archiveName, err := service.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(archiveName, archivePrefix))
	assert.True(t, strings.HasSuffix(archiveName, archiveSuffix))
	require.Len(t, store.objects, 1)

	names, metadata := readArchive(t, store.objects[archiveName].data)
	assert.ElementsMatch(t, []string{"cache.db", "vault.db", "backup-metadata.json"}, names)

	assert.NotEmpty(t, metadata.ArchiveID)
	assert.Equal(t, version.Version, metadata.AppVersion)
	assert.False(t, metadata.CreatedAt.IsZero())
	require.Len(t, metadata.Databases, 2)
	for _, db := range metadata.Databases {
		assert.True(t, strings.HasPrefix(db.Checksum, "sha256:"), "checksum %q", db.Checksum)
		assert.Greater(t, db.SizeBytes, int64(0))
	}
}

func TestCreateAndUploadBackup_EmitsCompletionEvent(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	var received []*events.Event
	bus.Subscribe(events.BackupCompleted, func(e *events.Event) {
		received = append(received, e)
	})

	service, _ := newOffsiteFixture(t, fakeConfig{}, manager)

	archiveName, err := service.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)

	require.Len(t, received, 1)
	data, ok := received[0].Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, archiveName, data["archive"])
}

func TestEnabled_ReadsSettingsFlag(t *testing.T) {
	service, _ := newOffsiteFixture(t, fakeConfig{"s3_backup_enabled": 1.0}, nil)
	assert.True(t, service.Enabled())

	service, _ = newOffsiteFixture(t, fakeConfig{"s3_backup_enabled": 0.0}, nil)
	assert.False(t, service.Enabled())

	service, _ = newOffsiteFixture(t, fakeConfig{}, nil)
	assert.False(t, service.Enabled())
}

func TestRetentionDays_DefaultsWhenUnset(t *testing.T) {
	service, _ := newOffsiteFixture(t, fakeConfig{}, nil)
	assert.Equal(t, 90, service.RetentionDays())

	service, _ = newOffsiteFixture(t, fakeConfig{"s3_backup_retention_days": 30.0}, nil)
	assert.Equal(t, 30, service.RetentionDays())
}

func TestListBackups_ParsesAndSortsNewestFirst(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{}, nil)

	store.objects["vault-backup-2026-08-24-120000-aaaaaaaa.tar.gz"] = fakeObject{data: []byte("older")}
	store.objects["vault-backup-2026-08-25-090000-bbbbbbbb.tar.gz"] = fakeObject{data: []byte("newest")}
	store.objects["vault-backup-garbage.tar.gz"] = fakeObject{data: []byte("junk")}

	backups, err := service.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2, "unparseable names must be skipped")

	assert.Equal(t, "bbbbbbbb", backups[0].ArchiveID)
	assert.Equal(t, "aaaaaaaa", backups[1].ArchiveID)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.Equal(t, int64(len("newest")), backups[0].SizeBytes)
	assert.GreaterOrEqual(t, backups[0].AgeHours, int64(0))
}

func seedArchive(store *fakeStore, ts time.Time, id string) string {
	key := archivePrefix + ts.Format(timestampLayout) + "-" + id + archiveSuffix
	store.objects[key] = fakeObject{data: []byte(id), modified: ts}
	return key
}

func TestRotateOldBackups_DeletesBeyondRetention(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{"s3_backup_retention_days": 90.0}, nil)

	now := time.Now()
	seedArchive(store, now.Add(-1*time.Hour), "aaaaaaaa")
	seedArchive(store, now.Add(-2*time.Hour), "bbbbbbbb")
	seedArchive(store, now.Add(-3*time.Hour), "cccccccc")
	oldA := seedArchive(store, now.AddDate(0, 0, -120), "dddddddd")
	oldB := seedArchive(store, now.AddDate(0, 0, -150), "eeeeeeee")

	require.NoError(t, service.RotateOldBackups(context.Background()))

	assert.Len(t, store.objects, 3)
	assert.NotContains(t, store.objects, oldA)
	assert.NotContains(t, store.objects, oldB)
}

func TestRotateOldBackups_KeepsMinimumRegardlessOfAge(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{"s3_backup_retention_days": 7.0}, nil)

	now := time.Now()
	seedArchive(store, now.AddDate(0, 0, -100), "aaaaaaaa")
	seedArchive(store, now.AddDate(0, 0, -200), "bbbbbbbb")
	seedArchive(store, now.AddDate(0, 0, -300), "cccccccc")

	require.NoError(t, service.RotateOldBackups(context.Background()))

	assert.Len(t, store.objects, 3, "last backups survive even past retention")
}

func TestRotateOldBackups_ZeroRetentionKeepsEverything(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{"s3_backup_retention_days": 0.0}, nil)

	now := time.Now()
	for i := 0; i < 5; i++ {
		seedArchive(store, now.AddDate(0, 0, -100*(i+1)), strings.Repeat(string(rune('a'+i)), 8))
	}

	require.NoError(t, service.RotateOldBackups(context.Background()))

	assert.Len(t, store.objects, 5)
}

func TestOffsiteBackupJob_SkipsWhenDisabled(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{}, nil)
	job := NewOffsiteBackupJob(service, zerolog.Nop())

	assert.Equal(t, "offsite_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Empty(t, store.objects)
}

func TestOffsiteBackupJob_UploadsWhenEnabled(t *testing.T) {
	service, store := newOffsiteFixture(t, fakeConfig{"s3_backup_enabled": 1.0}, nil)
	job := NewOffsiteBackupJob(service, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Len(t, store.objects, 1)
}

func TestNewS3Client_RejectsIncompleteConfig(t *testing.T) {
	_, err := NewS3Client("", "key", "secret", "bucket", zerolog.Nop())
	require.Error(t, err)

	_, err = NewS3Client("https://example.com", "key", "secret", "", zerolog.Nop())
	require.Error(t, err)
}
