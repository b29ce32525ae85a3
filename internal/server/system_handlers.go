// Package server provides the HTTP server and routing for the vault.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/polkapulse/vault/internal/clients/feed"
	"github.com/polkapulse/vault/internal/clients/gateway"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/internal/modules/treasury"
	"github.com/polkapulse/vault/internal/scheduler"
)

// JobRunner triggers a registered keeper job outside its schedule.
// *scheduler.Scheduler satisfies this.
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log                 zerolog.Logger
	dataDir             string
	startupTime         time.Time
	vaultDB             *database.DB
	telemetryDB         *database.DB
	configDB            *database.DB
	cacheDB             *database.DB
	ledgerService       *ledger.Service
	orchestratorService *orchestrator.Service
	treasuryService     *treasury.Service
	harvestService      *harvest.Service
	gatewayClient       *gateway.Client
	feedClient          *feed.Client
	jobHistory          *scheduler.History

	// Jobs (set after job registration in main.go)
	jobRunner JobRunner
	jobs      map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	vaultDB, telemetryDB, configDB, cacheDB *database.DB,
	ledgerService *ledger.Service,
	orchestratorService *orchestrator.Service,
	treasuryService *treasury.Service,
	harvestService *harvest.Service,
	gatewayClient *gateway.Client,
	feedClient *feed.Client,
	jobHistory *scheduler.History,
) *SystemHandlers {
	return &SystemHandlers{
		log:                 log.With().Str("component", "system_handlers").Logger(),
		dataDir:             dataDir,
		startupTime:         time.Now(),
		vaultDB:             vaultDB,
		telemetryDB:         telemetryDB,
		configDB:            configDB,
		cacheDB:             cacheDB,
		ledgerService:       ledgerService,
		orchestratorService: orchestratorService,
		treasuryService:     treasuryService,
		harvestService:      harvestService,
		gatewayClient:       gatewayClient,
		feedClient:          feedClient,
		jobHistory:          jobHistory,
		jobs:                make(map[string]scheduler.Job),
	}
}

// SetJobs registers job references for manual triggering, keyed by job name.
// Called after jobs are registered in main.go.
func (h *SystemHandlers) SetJobs(runner JobRunner, jobs ...scheduler.Job) {
	h.jobRunner = runner
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	Paused        bool    `json:"paused"`
	TotalShares   string  `json:"total_shares"`
	ManagedAssets string  `json:"managed_assets"`
	ExchangeRate  string  `json:"exchange_rate"`
	HolderCount   int     `json:"holder_count"`
	PartnerCount  int     `json:"partner_count"`
	AccruedFees   string  `json:"accrued_fees"`
	LastHarvest   string  `json:"last_harvest,omitempty"`
	LastYieldLoop string  `json:"last_yield_loop,omitempty"`
	UptimeHours   float64 `json:"uptime_hours"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
}

// GatewayStatusResponse represents gateway node connection status
type GatewayStatusResponse struct {
	Connected bool        `json:"connected"`
	LastCheck string      `json:"last_check"`
	Message   string      `json:"message,omitempty"`
	Feed      *feed.Stats `json:"feed,omitempty"`
	FeedStale bool        `json:"feed_stale"`
}

// JobsStatusResponse represents scheduler job status
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
	LastRun   string    `json:"last_run,omitempty"`
}

// JobInfo represents information about a single job
type JobInfo struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "success", "failed", "running", "never"
	LastRun    string `json:"last_run,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	BackupsMB   float64 `json:"backups_mb"`
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb,omitempty"`
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot() (SystemStatusResponse, error) {
	if h == nil {
		return SystemStatusResponse{}, fmt.Errorf("system handlers not initialized")
	}

	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	response := SystemStatusResponse{
		Status:        "healthy",
		TotalShares:   "0",
		ManagedAssets: "0",
		ExchangeRate:  "0",
		AccruedFees:   "0",
	}

	if snap, err := h.ledgerService.Snapshot(); err != nil {
		h.log.Error().Err(err).Msg("Failed to read pool snapshot")
		recordErr(err)
	} else {
		response.TotalShares = snap.TotalShares.String()
		response.ManagedAssets = snap.TotalManagedAsset.String()
		response.ExchangeRate = snap.ExchangeRate.String()
		response.HolderCount = snap.HolderCount
	}

	if state, err := h.orchestratorService.State(); err != nil {
		h.log.Error().Err(err).Msg("Failed to read core state")
		recordErr(err)
	} else {
		response.Paused = state.Paused
		response.AccruedFees = state.AccruedFees.String()
		response.LastYieldLoop = formatMarker(state.LastYieldLoopMarker)
	}

	if state, err := h.harvestService.State(); err != nil {
		h.log.Error().Err(err).Msg("Failed to read harvest state")
		recordErr(err)
	} else {
		response.LastHarvest = formatMarker(state.LastHarvestMarker)
	}

	if partners, err := h.treasuryService.Repo().ListPartners(); err != nil {
		h.log.Error().Err(err).Msg("Failed to list partners")
		recordErr(err)
	} else {
		for _, p := range partners {
			if p.Active {
				response.PartnerCount++
			}
		}
	}

	if firstErr != nil {
		response.Status = "degraded"
	}

	cpuPercent, ramPercent := h.getSystemStats()
	response.UptimeHours = time.Since(h.startupTime).Hours()
	response.CPUPercent = cpuPercent
	response.RAMPercent = ramPercent

	return response, firstErr
}

// formatMarker renders a unix-second marker, empty when never set
func formatMarker(marker int64) string {
	if marker <= 0 {
		return ""
	}
	return time.Unix(marker, 0).UTC().Format(time.RFC3339)
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot()
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	h.writeJSON(w, response)
}

// HandleGatewayStatus returns gateway node connection status
func (h *SystemHandlers) HandleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Checking gateway status")

	response := GatewayStatusResponse{
		Connected: false,
		LastCheck: time.Now().Format(time.RFC3339),
	}

	if h.gatewayClient == nil {
		response.Message = "Gateway client not configured"
		h.writeJSON(w, response)
		return
	}

	if err := h.gatewayClient.HealthCheck(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Gateway health check failed")
		response.Message = "Gateway is not reachable: " + err.Error()
	} else {
		response.Connected = true
		response.Message = "Gateway is connected"
	}

	if h.feedClient != nil {
		stats := h.feedClient.Stats()
		response.Feed = &stats
		response.FeedStale = h.feedClient.IsStale()
	}

	h.writeJSON(w, response)
}

// HandleJobsStatus returns the last recorded run of every registered job
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make([]JobInfo, 0, len(names))
	var lastRun int64

	for _, name := range names {
		info := JobInfo{Name: name, Status: "never"}

		if h.jobHistory != nil {
			runs, err := h.jobHistory.RecentRuns(name, 1)
			if err != nil {
				h.log.Warn().Err(err).Str("job", name).Msg("Failed to read job history")
			} else if len(runs) > 0 {
				run := runs[0]
				info.Status = run.Status
				info.LastRun = formatMarker(run.StartedAt)
				info.DurationMs = run.DurationMs
				info.Message = run.Message
				if run.StartedAt > lastRun {
					lastRun = run.StartedAt
				}
			}
		}

		jobs = append(jobs, info)
	}

	response := JobsStatusResponse{
		TotalJobs: len(jobs),
		Jobs:      jobs,
		LastRun:   formatMarker(lastRun),
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range []*database.DB{h.vaultDB, h.telemetryDB, h.configDB, h.cacheDB} {
		if db == nil {
			continue
		}

		info := DBInfo{
			Name: db.Name(),
			Path: db.Path(),
		}

		if stats, err := db.GetStats(); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
		} else {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
			totalSizeMB += info.SizeMB + info.WALSizeMB
		}

		databases = append(databases, info)
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	backupsDir := filepath.Join(h.dataDir, "backups")
	backupsSize := h.getDirSize(backupsDir)

	response := DiskUsageResponse{
		DataDirMB: dataDirSize,
		BackupsMB: backupsSize,
		TotalMB:   dataDirSize + backupsSize,
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get filesystem usage")
	} else {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
	}

	h.writeJSON(w, response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval so the status call stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// HandleTriggerJob triggers a registered keeper job by name.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.jobs[name]
	if !ok || h.jobRunner == nil {
		h.log.Warn().Str("job", name).Msg("Unknown or unregistered job requested")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		h.writeBody(w, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("Job %q is not registered", name),
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	// The run happens asynchronously; its outcome lands in job history.
	go func() {
		if err := h.jobRunner.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		}
	}()

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Job %q triggered", name),
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	h.writeBody(w, data)
}

func (h *SystemHandlers) writeBody(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
