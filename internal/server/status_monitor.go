// Package server provides the HTTP server and routing for the vault.
package server

import (
	"time"

	"github.com/polkapulse/vault/internal/clients/feed"
	"github.com/polkapulse/vault/internal/events"
	"github.com/rs/zerolog"
)

// StatusMonitor periodically checks system statuses and emits events on changes
type StatusMonitor struct {
	eventManager   *events.Manager
	systemHandlers *SystemHandlers
	feedClient     *feed.Client
	log            zerolog.Logger

	// Track previous states
	lastFeedConnected bool
	seededFeedStatus  bool
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(
	eventManager *events.Manager,
	systemHandlers *SystemHandlers,
	feedClient *feed.Client,
	log zerolog.Logger,
) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		feedClient:     feedClient,
		log:            log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial check
	m.checkStatuses()

	for range ticker.C {
		m.checkStatuses()
	}
}

// checkStatuses checks all monitored statuses and emits events on changes
func (m *StatusMonitor) checkStatuses() {
	m.checkSystemStatus()
	m.checkGatewayStatus()
}

// checkSystemStatus emits a periodic heartbeat so stream consumers can
// refresh their status panels without polling
func (m *StatusMonitor) checkSystemStatus() {
	if m.eventManager != nil {
		m.eventManager.Emit(events.SystemStatusChanged, "status_monitor", map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// checkGatewayStatus emits an event when the feed connection to the gateway
// node flips. The first check only seeds the tracked state so a healthy
// startup does not announce a phantom transition.
func (m *StatusMonitor) checkGatewayStatus() {
	if m.feedClient == nil {
		return
	}

	connected := m.feedClient.IsConnected()

	if !m.seededFeedStatus {
		m.lastFeedConnected = connected
		m.seededFeedStatus = true
		return
	}

	if connected != m.lastFeedConnected {
		if m.eventManager != nil {
			m.eventManager.Emit(events.GatewayStatusChanged, "status_monitor", map[string]interface{}{
				"connected": connected,
				"stale":     m.feedClient.IsStale(),
				"timestamp": time.Now().Format(time.RFC3339),
			})
		}
		m.lastFeedConnected = connected
	}
}
