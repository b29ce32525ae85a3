// Package telemetry collects venue rate observations and derives the
// smoothed rates and risk scores behind every allocation request. It owns
// telemetry.db and never participates in core vault transactions.
package telemetry

// Observation is one raw venue rate sample as delivered by the oracle.
type Observation struct {
	ID            int64  `json:"id"`
	Venue         string `json:"venue"`
	GrossRateBps  uint32 `json:"gross_rate_bps"`
	PeriodSeconds uint64 `json:"period_seconds"`
	ObservedAt    int64  `json:"observed_at"`
}

// Snapshot is one derived per-venue sample: the smoothed rate over the
// configured window, its annualized form, and a dispersion-based risk score.
type Snapshot struct {
	ID            int64  `json:"id"`
	Venue         string `json:"venue"`
	SmoothedBps   uint32 `json:"smoothed_bps"`
	AnnualizedBps uint32 `json:"annualized_bps"`
	RiskScore     uint32 `json:"risk_score"`
	WindowSize    int    `json:"window_size"`
	ComputedAt    int64  `json:"computed_at"`
}
