// Package server provides the HTTP server and routing for the vault.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/di"
	"github.com/polkapulse/vault/internal/domain"
	harvesthandlers "github.com/polkapulse/vault/internal/modules/harvest/handlers"
	ledgerhandlers "github.com/polkapulse/vault/internal/modules/ledger/handlers"
	vaulthandlers "github.com/polkapulse/vault/internal/modules/orchestrator/handlers"
	routerhandlers "github.com/polkapulse/vault/internal/modules/router/handlers"
	settingshandlers "github.com/polkapulse/vault/internal/modules/settings/handlers"
	telemetryhandlers "github.com/polkapulse/vault/internal/modules/telemetry/handlers"
	treasuryhandlers "github.com/polkapulse/vault/internal/modules/treasury/handlers"
	"github.com/polkapulse/vault/internal/scheduler"
)

// Config holds the server configuration
type Config struct {
	Log         zerolog.Logger
	VaultDB     *database.DB
	TelemetryDB *database.DB
	ConfigDB    *database.DB
	CacheDB     *database.DB
	Config      *config.Config
	Port        int
	DevMode     bool
	Container   *di.Container // DI container with all services
}

// Server is the HTTP surface over the vault core: the public pool reads,
// the deposit/withdraw entry points, the capability-gated operator and
// governance routes, and the system monitoring endpoints.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	vaultDB        *database.DB
	telemetryDB    *database.DB
	configDB       *database.DB
	cacheDB        *database.DB
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	backupHandlers *BackupHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.VaultDB,
		cfg.TelemetryDB,
		cfg.ConfigDB,
		cfg.CacheDB,
		cfg.Container.LedgerService,
		cfg.Container.OrchestratorService,
		cfg.Container.TreasuryService,
		cfg.Container.HarvestService,
		cfg.Container.GatewayClient,
		cfg.Container.FeedClient,
		cfg.Container.JobHistory,
	)

	backupHandlers := NewBackupHandlers(
		cfg.Container.BackupService,
		cfg.Container.OffsiteBackupService,
		cfg.Container.HealthServices,
		cfg.Container.JobHistory,
		cfg.Log,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		vaultDB:        cfg.VaultDB,
		telemetryDB:    cfg.TelemetryDB,
		configDB:       cfg.ConfigDB,
		cacheDB:        cfg.CacheDB,
		cfg:            cfg.Config,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
		backupHandlers: backupHandlers,
	}

	s.statusMonitor = NewStatusMonitor(
		cfg.Container.EventManager,
		systemHandlers,
		cfg.Container.FeedClient,
		cfg.Log,
	)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers the keeper jobs for manual triggering via the API.
// Called after job registration in main.go.
func (s *Server) SetJobs(runner JobRunner, jobs ...scheduler.Job) {
	s.systemHandlers.SetJobs(runner, jobs...)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	operatorOnly := s.requireCapability(domain.CapabilityOperator)
	governanceOnly := s.requireCapability(domain.CapabilityGovernance)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Unified events stream (SSE)
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		// System monitoring and operations
		systemHandlers := s.systemHandlers
		logHandlers := NewLogHandlers(s.log)

		r.Route("/system", func(r chi.Router) {
			// Status and monitoring
			r.Get("/status", systemHandlers.HandleSystemStatus)
			r.Get("/gateway", systemHandlers.HandleGatewayStatus)
			r.Get("/jobs", systemHandlers.HandleJobsStatus)
			r.Get("/database/stats", systemHandlers.HandleDatabaseStats)
			r.Get("/disk", systemHandlers.HandleDiskUsage)

			// Log access
			r.Get("/logs/list", logHandlers.HandleListLogs)
			r.Get("/logs", logHandlers.HandleGetLogs)
			r.Get("/logs/errors", logHandlers.HandleGetErrors)

			// Job triggers (manual operation triggers)
			r.Group(func(r chi.Router) {
				r.Use(operatorOnly)
				r.Post("/jobs/{name}", systemHandlers.HandleTriggerJob)
			})
		})

		// Backup operations (operator capability)
		r.Group(func(r chi.Router) {
			r.Use(operatorOnly)
			r.Route("/backup", func(r chi.Router) {
				r.Get("/status", s.backupHandlers.HandleBackupStatus)
				r.Post("/run/{tier}", s.backupHandlers.HandleRunBackup)
				r.Get("/offsite", s.backupHandlers.HandleListOffsiteBackups)
				r.Post("/offsite/run", s.backupHandlers.HandleRunOffsiteBackup)
			})
		})

		// Vault core: deposits, withdrawals, operator entry points
		vaultHandler := vaulthandlers.NewHandler(s.container.OrchestratorService, s.log)
		vaultHandler.RegisterRoutes(r, operatorOnly)

		// Governance surface under its own capability
		r.Group(func(r chi.Router) {
			r.Use(governanceOnly)
			vaultHandler.RegisterGovernanceRoutes(r)
		})

		// Share ledger reads
		ledgerHandler := ledgerhandlers.NewHandler(s.container.LedgerService, s.log)
		ledgerHandler.SetSettingsService(s.container.SettingsService)
		ledgerHandler.RegisterRoutes(r)

		// Harvest reads
		harvestHandler := harvesthandlers.NewHandler(s.container.HarvestService, s.log)
		harvestHandler.RegisterRoutes(r)

		// Router reads
		routerHandler := routerhandlers.NewHandler(s.container.RouterService, s.log)
		routerHandler.RegisterRoutes(r)

		// Treasury reads
		treasuryHandler := treasuryhandlers.NewHandler(s.container.TreasuryService, s.log)
		treasuryHandler.RegisterRoutes(r)

		// Venue telemetry reads and the allocation preview
		telemetryHandler := telemetryhandlers.NewHandler(s.container.TelemetryService, s.log)
		telemetryHandler.RegisterRoutes(r)

		// Settings
		settingsHandler := settingshandlers.NewHandler(s.container.SettingsService, s.container.EventManager, s.log)
		settingsHandler.SetWarmupRunner(s.container.TelemetryService)
		settingsHandler.SetCredentialRefresher(s.container.GatewayClient)
		settingsHandler.SetCacheMaintainer(s.container.JobHistory)
		settingsHandler.RegisterRoutes(r)
	})
}

// requireCapability guards a route subtree with a bearer token check. An
// empty configured token locks the capability out entirely rather than
// leaving the routes open.
func (s *Server) requireCapability(capability domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			switch capability {
			case domain.CapabilityOperator:
				token = s.cfg.OperatorToken
			case domain.CapabilityGovernance:
				token = s.cfg.GovernanceToken
			}

			if token == "" {
				s.log.Warn().
					Str("capability", string(capability)).
					Str("path", r.URL.Path).
					Msg("Capability token not configured, rejecting request")
				http.Error(w, "Capability not configured", http.StatusForbidden)
				return
			}

			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Start starts the HTTP server and background monitors
func (s *Server) Start() error {
	// Start status monitor (check every 60 seconds)
	if s.statusMonitor != nil {
		s.statusMonitor.Start(60 * time.Second)
		s.log.Info().Msg("Status monitor started")
	}

	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
