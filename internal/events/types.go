// Package events provides the in-process event system: typed event
// definitions, a subscription bus, and an emission manager. Services publish
// lifecycle events here; the SSE stream and keeper listeners consume them.
package events

import "time"

// EventType identifies a class of system event
type EventType string

const (
	// DepositSettled - a deposit was accepted and shares were minted
	DepositSettled EventType = "deposit_settled"
	// WithdrawalSettled - shares were burned and assets paid out
	WithdrawalSettled EventType = "withdrawal_settled"
	// HarvestCompleted - accrued reward was claimed into the pool
	HarvestCompleted EventType = "harvest_completed"
	// YieldLoopCompleted - a full harvest/fee/skim/route/credit cycle committed
	YieldLoopCompleted EventType = "yield_loop_completed"
	// EpochSettled - the treasury reserve was spent and distributed
	EpochSettled EventType = "epoch_settled"
	// PartnerAdded - a partner joined the treasury registry
	PartnerAdded EventType = "partner_added"
	// PartnerRemoved - a partner was deactivated in the registry
	PartnerRemoved EventType = "partner_removed"
	// DispatchSubmitted - a remote-deployment request was accepted upstream
	DispatchSubmitted EventType = "dispatch_submitted"
	// ParameterUpdated - a governed parameter changed
	ParameterUpdated EventType = "parameter_updated"
	// VaultPaused - deposits, withdrawals and loops are suspended
	VaultPaused EventType = "vault_paused"
	// VaultResumed - the vault left the paused state
	VaultResumed EventType = "vault_resumed"
	// TelemetryUpdated - fresh venue observations were ingested
	TelemetryUpdated EventType = "telemetry_updated"
	// GatewayStatusChanged - connectivity to the gateway node changed
	GatewayStatusChanged EventType = "gateway_status_changed"
	// SettingsChanged - an operational setting was written
	SettingsChanged EventType = "settings_changed"
	// SystemStatusChanged - host-level status snapshot changed
	SystemStatusChanged EventType = "system_status_changed"
	// BackupCompleted - a backup archive was created (and uploaded, if remote)
	BackupCompleted EventType = "backup_completed"
	// ErrorOccurred - a background operation failed
	ErrorOccurred EventType = "error_occurred"

	// JobStarted / JobCompleted / JobFailed - keeper job lifecycle
	JobStarted   EventType = "job_started"
	JobCompleted EventType = "job_completed"
	JobFailed    EventType = "job_failed"
)

// Event is one published occurrence delivered to subscribers
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}
