package domain

// Venue identifies one external yield destination and its static parameters.
// The dynamic inputs (observed rate, risk score) come from telemetry.
type Venue struct {
	ID          string `json:"id"`          // short identifier, e.g. "venue-a"
	Destination string `json:"destination"` // remote system address for dispatches
	FeeBps      uint32 `json:"fee_bps"`     // venue protocol fee on yield
}

// Capability names a privilege class required by a guarded entry point.
type Capability string

const (
	// CapabilityOperator may run the yield loop, trigger epochs, and run backups.
	CapabilityOperator Capability = "operator"
	// CapabilityGovernance may change parameters and mutate the partner registry.
	CapabilityGovernance Capability = "governance"
)
