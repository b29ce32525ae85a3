// Package server provides the HTTP server and routing for the vault.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/reliability"
	"github.com/polkapulse/vault/internal/scheduler"
)

// BackupHandlers exposes the backup surface: tiered local backups, the
// offsite archive, and per-database health metrics.
type BackupHandlers struct {
	backupService  *reliability.BackupService
	offsiteService *reliability.OffsiteBackupService
	healthServices map[string]*reliability.DatabaseHealthService
	jobHistory     *scheduler.History
	log            zerolog.Logger
}

// NewBackupHandlers creates a new backup handlers instance
func NewBackupHandlers(
	backupService *reliability.BackupService,
	offsiteService *reliability.OffsiteBackupService,
	healthServices map[string]*reliability.DatabaseHealthService,
	jobHistory *scheduler.History,
	log zerolog.Logger,
) *BackupHandlers {
	return &BackupHandlers{
		backupService:  backupService,
		offsiteService: offsiteService,
		healthServices: healthServices,
		jobHistory:     jobHistory,
		log:            log.With().Str("component", "backup_handlers").Logger(),
	}
}

// backupJobNames are the history keys shown on the status endpoint
var backupJobNames = []string{"hourly_backup", "daily_backup", "weekly_backup", "offsite_backup"}

// BackupStatusResponse represents the backup subsystem status
type BackupStatusResponse struct {
	BackedUpToday  bool                          `json:"backed_up_today"`
	OffsiteEnabled bool                          `json:"offsite_enabled"`
	Databases      []reliability.DatabaseMetrics `json:"databases"`
	RecentRuns     []scheduler.JobRun            `json:"recent_runs"`
	LastChecked    string                        `json:"last_checked"`
}

// HandleBackupStatus handles GET /api/backup/status
func (h *BackupHandlers) HandleBackupStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting backup status")

	response := BackupStatusResponse{
		Databases:   []reliability.DatabaseMetrics{},
		RecentRuns:  []scheduler.JobRun{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	if h.backupService != nil {
		response.BackedUpToday = h.backupService.BackedUpToday()
	}
	if h.offsiteService != nil {
		response.OffsiteEnabled = h.offsiteService.Enabled()
	}

	names := make([]string, 0, len(h.healthServices))
	for name := range h.healthServices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		metrics, err := h.healthServices[name].GetMetrics()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database metrics")
			continue
		}
		response.Databases = append(response.Databases, *metrics)
	}

	if h.jobHistory != nil {
		for _, jobName := range backupJobNames {
			runs, err := h.jobHistory.RecentRuns(jobName, 3)
			if err != nil {
				h.log.Warn().Err(err).Str("job", jobName).Msg("Failed to read backup job history")
				continue
			}
			response.RecentRuns = append(response.RecentRuns, runs...)
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunBackup handles POST /api/backup/run/{tier}. The backup runs
// synchronously; SQLite online backups of this dataset finish quickly.
func (h *BackupHandlers) HandleRunBackup(w http.ResponseWriter, r *http.Request) {
	tier := chi.URLParam(r, "tier")

	if h.backupService == nil {
		http.Error(w, "Backup service not configured", http.StatusServiceUnavailable)
		return
	}

	h.log.Info().Str("tier", tier).Msg("Manual backup triggered")

	var err error
	switch tier {
	case "hourly":
		err = h.backupService.HourlyBackup()
	case "daily":
		err = h.backupService.DailyBackup()
	case "weekly":
		err = h.backupService.WeeklyBackup()
	default:
		http.Error(w, "Unknown backup tier, expected hourly, daily or weekly", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.log.Error().Err(err).Str("tier", tier).Msg("Manual backup failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Backup failed: " + err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": tier + " backup completed",
	})
}

// OffsiteBackupsResponse represents the offsite archive listing
type OffsiteBackupsResponse struct {
	Enabled       bool                     `json:"enabled"`
	RetentionDays int                      `json:"retention_days,omitempty"`
	Backups       []reliability.BackupInfo `json:"backups"`
	Count         int                      `json:"count"`
}

// HandleListOffsiteBackups handles GET /api/backup/offsite
func (h *BackupHandlers) HandleListOffsiteBackups(w http.ResponseWriter, r *http.Request) {
	response := OffsiteBackupsResponse{Backups: []reliability.BackupInfo{}}

	if h.offsiteService == nil || !h.offsiteService.Enabled() {
		h.writeJSON(w, http.StatusOK, response)
		return
	}

	response.Enabled = true
	response.RetentionDays = h.offsiteService.RetentionDays()

	backups, err := h.offsiteService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list offsite backups")
		http.Error(w, "Failed to list offsite backups", http.StatusBadGateway)
		return
	}

	response.Backups = backups
	response.Count = len(backups)

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunOffsiteBackup handles POST /api/backup/offsite/run. The upload
// runs in the background so the request is not held open for the transfer.
func (h *BackupHandlers) HandleRunOffsiteBackup(w http.ResponseWriter, r *http.Request) {
	if h.offsiteService == nil || !h.offsiteService.Enabled() {
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "error",
			"message": "Offsite backups are not configured",
		})
		return
	}

	h.log.Info().Msg("Manual offsite backup triggered")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		archiveID, err := h.offsiteService.CreateAndUploadBackup(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Manual offsite backup failed")
			return
		}

		h.log.Info().Str("archive_id", archiveID).Msg("Manual offsite backup uploaded")

		if err := h.offsiteService.RotateOldBackups(ctx); err != nil {
			h.log.Error().Err(err).Msg("Offsite rotation failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Offsite backup started",
	})
}

// writeJSON writes a JSON response
func (h *BackupHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
