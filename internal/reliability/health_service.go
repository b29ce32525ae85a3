package reliability

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/database"
)

// DatabaseHealthService monitors one database and recovers it when the
// integrity check fails: first a WAL checkpoint through a fresh
// connection, then a restore from the newest local backup.
type DatabaseHealthService struct {
	db      *database.DB
	backups *BackupService
	name    string
	path    string
	profile database.DatabaseProfile
	log     zerolog.Logger
}

// NewDatabaseHealthService creates a health service for one database
func NewDatabaseHealthService(db *database.DB, backups *BackupService, log zerolog.Logger) *DatabaseHealthService {
	return &DatabaseHealthService{
		db:      db,
		backups: backups,
		name:    db.Name(),
		path:    db.Path(),
		profile: db.Profile(),
		log:     log.With().Str("service", "health").Str("database", db.Name()).Logger(),
	}
}

// DB returns the current handle, which changes after a recovery.
func (s *DatabaseHealthService) DB() *database.DB {
	return s.db
}

// CheckAndRecover performs a health check and auto-recovery if needed
func (s *DatabaseHealthService) CheckAndRecover() error {
	s.log.Debug().Msg("Starting health check")

	if err := s.checkIntegrity(); err != nil {
		s.log.Error().Err(err).Msg("Integrity check failed")

		if err := s.attemptWALRecovery(); err != nil {
			s.log.Error().Err(err).Msg("WAL recovery failed")
			return s.restoreFromBackup()
		}

		if err := s.checkIntegrity(); err != nil {
			s.log.Error().Err(err).Msg("Integrity check failed after WAL recovery")
			return s.restoreFromBackup()
		}

		s.log.Info().Msg("Database recovered via WAL recovery")
	}

	s.log.Debug().Msg("Health check complete")
	return nil
}

// checkIntegrity runs PRAGMA integrity_check
func (s *DatabaseHealthService) checkIntegrity() error {
	var result string
	err := s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// attemptWALRecovery closes the suspect connection and forces a WAL
// checkpoint through a fresh one. A connection that saw the corruption
// cannot be trusted to checkpoint it.
func (s *DatabaseHealthService) attemptWALRecovery() error {
	s.log.Warn().Msg("Attempting WAL recovery")

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	newDB, err := s.reopen()
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	if err := newDB.WALCheckpoint("RESTART"); err != nil {
		s.db = newDB
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	s.db = newDB

	s.log.Info().Msg("WAL recovery completed")
	return nil
}

// restoreFromBackup replaces the database file with the newest backup.
// Callers holding the old pool keep failing until the process restarts
// under its supervisor.
func (s *DatabaseHealthService) restoreFromBackup() error {
	s.log.Warn().Msg("Attempting restore from backup")

	backup, err := s.backups.RestoreFromBackup(s.name)
	if err != nil {
		return fmt.Errorf("CRITICAL: no backup found for %s: %w", s.name, err)
	}

	if err := s.db.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close corrupted database")
	}

	// Keep the corrupted file for investigation.
	corruptedPath := s.path + ".corrupted." + time.Now().Format("20060102_150405")
	if err := os.Rename(s.path, corruptedPath); err != nil {
		s.log.Error().Err(err).Msg("Failed to move corrupted file aside")
	} else {
		s.log.Info().Str("path", corruptedPath).Msg("Corrupted file moved aside")
	}

	// Stale sidecars would pair-mismatch the restored copy.
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")

	if err := CopyFile(backup, s.path); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	newDB, err := s.reopen()
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	s.db = newDB

	var result string
	err = s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil || result != "ok" {
		return fmt.Errorf("restored backup failed integrity check: %s", result)
	}

	s.log.Info().
		Str("backup", backup).
		Msg("Successfully restored from backup")

	return nil
}

func (s *DatabaseHealthService) reopen() (*database.DB, error) {
	return database.New(database.Config{
		Path:    s.path,
		Profile: s.profile,
		Name:    s.name,
	})
}

// GetMetrics returns current size and integrity metrics for the database
func (s *DatabaseHealthService) GetMetrics() (*DatabaseMetrics, error) {
	stats, err := s.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	metrics := &DatabaseMetrics{
		Name:          s.name,
		SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
		FreelistPages: stats.FreelistCount,
	}

	var result string
	if err := s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err == nil {
		metrics.IntegrityCheckPassed = result == "ok"
		metrics.LastIntegrityCheck = time.Now()
	}

	return metrics, nil
}

// DatabaseMetrics holds database health metrics for the status surface
type DatabaseMetrics struct {
	Name                 string    `json:"name"`
	SizeMB               float64   `json:"size_mb"`
	WALSizeMB            float64   `json:"wal_size_mb"`
	FreelistPages        int64     `json:"freelist_pages"`
	LastIntegrityCheck   time.Time `json:"last_integrity_check"`
	IntegrityCheckPassed bool      `json:"integrity_check_passed"`
}

// CopyFile copies a file from src to dst
func CopyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, input, 0644)
}
