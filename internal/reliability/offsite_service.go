package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/events"
	"github.com/polkapulse/vault/internal/version"
)

const (
	archivePrefix    = "vault-backup-"
	archiveSuffix    = ".tar.gz"
	timestampLayout  = "2006-01-02-150405"
	minBackupsToKeep = 3
)

// ConfigSource provides typed settings values. The settings service
// satisfies this directly.
type ConfigSource interface {
	Get(key string) (interface{}, error)
}

// ObjectStore is the slice of the S3 client the offsite service uses.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// OffsiteBackupService archives every database into a checksummed tar.gz
// and ships it to an S3-compatible bucket. Connection settings are read
// from the settings store on each run, so credential changes apply
// without a restart.
type OffsiteBackupService struct {
	backups *BackupService
	config  ConfigSource
	events  *events.Manager
	dataDir string
	log     zerolog.Logger

	// newStore is replaced in tests.
	newStore func() (ObjectStore, error)
}

// BackupMetadata is the manifest written into each archive
type BackupMetadata struct {
	ArchiveID  string             `json:"archive_id"`
	CreatedAt  time.Time          `json:"created_at"`
	AppVersion string             `json:"app_version"`
	Databases  []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes a single database inside the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes one archive in the bucket
type BackupInfo struct {
	Filename  string    `json:"filename"`
	ArchiveID string    `json:"archive_id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewOffsiteBackupService creates a new offsite backup service
func NewOffsiteBackupService(
	backups *BackupService,
	config ConfigSource,
	eventManager *events.Manager,
	dataDir string,
	log zerolog.Logger,
) *OffsiteBackupService {
	s := &OffsiteBackupService{
		backups: backups,
		config:  config,
		events:  eventManager,
		dataDir: dataDir,
		log:     log.With().Str("service", "offsite_backup").Logger(),
	}
	s.newStore = s.connect
	return s
}

// Enabled reports whether offsite backups are switched on in settings
func (s *OffsiteBackupService) Enabled() bool {
	value, err := s.config.Get("s3_backup_enabled")
	if err != nil || value == nil {
		return false
	}
	enabled, ok := value.(float64)
	return ok && enabled != 0
}

// RetentionDays returns the configured offsite retention. Zero keeps
// archives forever.
func (s *OffsiteBackupService) RetentionDays() int {
	value, err := s.config.Get("s3_backup_retention_days")
	if err != nil || value == nil {
		return 90
	}
	days, ok := value.(float64)
	if !ok {
		return 90
	}
	return int(days)
}

// connect builds the object store from the current settings
func (s *OffsiteBackupService) connect() (ObjectStore, error) {
	return NewS3Client(
		s.stringSetting("s3_endpoint"),
		s.stringSetting("s3_access_key_id"),
		s.stringSetting("s3_secret_access_key"),
		s.stringSetting("s3_bucket_name"),
		s.log,
	)
}

func (s *OffsiteBackupService) stringSetting(key string) string {
	value, err := s.config.Get(key)
	if err != nil || value == nil {
		return ""
	}
	str, _ := value.(string)
	return str
}

// CreateAndUploadBackup archives all databases and uploads the archive,
// returning its object key.
func (s *OffsiteBackupService) CreateAndUploadBackup(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting offsite backup")
	startTime := time.Now()

	store, err := s.newStore()
	if err != nil {
		return "", fmt.Errorf("failed to connect to object store: %w", err)
	}

	stagingDir := filepath.Join(s.dataDir, "offsite-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archiveID := uuid.New().String()
	dbNames := s.backups.GetDatabaseNames(true)
	metadata := BackupMetadata{
		ArchiveID:  archiveID,
		CreatedAt:  time.Now().UTC(),
		AppVersion: version.Version,
		Databases:  make([]DatabaseMetadata, 0, len(dbNames)),
	}

	archiveFiles := make([]string, 0, len(dbNames)+1)
	for _, dbName := range dbNames {
		filename := dbName + ".db"
		dbPath := filepath.Join(stagingDir, filename)

		s.log.Debug().Str("database", dbName).Msg("Staging database")

		if err := s.backups.BackupDatabase(dbName, dbPath); err != nil {
			return "", fmt.Errorf("failed to backup %s: %w", dbName, err)
		}

		info, err := os.Stat(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s backup: %w", dbName, err)
		}

		checksum, err := calculateChecksum(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to calculate checksum for %s: %w", dbName, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      dbName,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		archiveFiles = append(archiveFiles, filename)
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	archiveFiles = append(archiveFiles, "backup-metadata.json")

	timestamp := time.Now().Format(timestampLayout)
	archiveName := fmt.Sprintf("%s%s-%s%s", archivePrefix, timestamp, archiveID[:8], archiveSuffix)
	archivePath := filepath.Join(stagingDir, archiveName)

	if err := createArchive(archivePath, stagingDir, archiveFiles); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := store.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	if s.events != nil {
		s.events.Emit(events.BackupCompleted, "reliability", map[string]interface{}{
			"archive":    archiveName,
			"archive_id": archiveID,
			"size_bytes": archiveInfo.Size(),
			"databases":  len(metadata.Databases),
		})
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Msg("Offsite backup completed successfully")

	return archiveName, nil
}

// ListBackups lists all archives in the bucket, newest first
func (s *OffsiteBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	store, err := s.newStore()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store: %w", err)
	}

	objects, err := store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list offsite backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		info, ok := s.parseArchiveName(obj.Key)
		if !ok {
			continue
		}

		info.SizeBytes = obj.SizeBytes
		info.AgeHours = int64(now.Sub(info.Timestamp).Hours())
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// parseArchiveName extracts the timestamp and archive id from an object
// key like vault-backup-2026-08-25-031500-ab12cd34.tar.gz.
func (s *OffsiteBackupService) parseArchiveName(filename string) (BackupInfo, bool) {
	if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, archiveSuffix) {
		return BackupInfo{}, false
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), archiveSuffix)
	if len(trimmed) < len(timestampLayout) {
		return BackupInfo{}, false
	}

	timestamp, err := time.Parse(timestampLayout, trimmed[:len(timestampLayout)])
	if err != nil {
		s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from archive name")
		return BackupInfo{}, false
	}

	return BackupInfo{
		Filename:  filename,
		ArchiveID: strings.TrimPrefix(trimmed[len(timestampLayout):], "-"),
		Timestamp: timestamp,
	}, true
}

// RotateOldBackups deletes archives older than the retention period,
// always keeping the newest few regardless of age.
func (s *OffsiteBackupService) RotateOldBackups(ctx context.Context) error {
	retentionDays := s.RetentionDays()
	s.log.Info().Int("retention_days", retentionDays).Msg("Starting offsite backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) <= minBackupsToKeep {
		s.log.Info().Int("count", len(backups)).Msg("Too few backups to rotate")
		return nil
	}

	var cutoffTime time.Time
	if retentionDays > 0 {
		cutoffTime = time.Now().AddDate(0, 0, -retentionDays)
	}

	store, err := s.newStore()
	if err != nil {
		return fmt.Errorf("failed to connect to object store: %w", err)
	}

	deletedCount := 0
	for i, backup := range backups {
		if i < minBackupsToKeep {
			continue
		}

		// Retention zero keeps everything beyond the minimum.
		if retentionDays == 0 {
			continue
		}

		if backup.Timestamp.Before(cutoffTime) {
			if err := store.Delete(ctx, backup.Filename); err != nil {
				s.log.Error().
					Err(err).
					Str("filename", backup.Filename).
					Msg("Failed to delete old backup")
				continue
			}

			s.log.Info().
				Str("filename", backup.Filename).
				Time("timestamp", backup.Timestamp).
				Msg("Deleted old backup")

			deletedCount++
		}
	}

	s.log.Info().
		Int("deleted", deletedCount).
		Int("remaining", len(backups)-deletedCount).
		Msg("Offsite backup rotation completed")

	return nil
}

// calculateChecksum calculates the SHA256 checksum of a file
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes the manifest to a JSON file
func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes the named files from sourceDir into a tar.gz
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		filePath := filepath.Join(sourceDir, filename)

		if err := addFileToArchive(tarWriter, filePath, filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

// addFileToArchive adds a single file to a tar archive
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}

// OffsiteBackupJob wraps the offsite cycle for the scheduler: archive,
// upload, rotate. Skips quietly when offsite backups are disabled.
type OffsiteBackupJob struct {
	service *OffsiteBackupService
	log     zerolog.Logger
}

// NewOffsiteBackupJob creates a new offsite backup job
func NewOffsiteBackupJob(service *OffsiteBackupService, log zerolog.Logger) *OffsiteBackupJob {
	return &OffsiteBackupJob{
		service: service,
		log:     log.With().Str("job", "offsite_backup").Logger(),
	}
}

// Run executes the offsite backup cycle
func (j *OffsiteBackupJob) Run() error {
	if !j.service.Enabled() {
		j.log.Debug().Msg("Offsite backups disabled, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Error().Err(err).Msg("Offsite rotation failed")
		// Upload succeeded, rotation can catch up next run
	}

	return nil
}

// Name returns the job name for the scheduler
func (j *OffsiteBackupJob) Name() string {
	return "offsite_backup"
}
