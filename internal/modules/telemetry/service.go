package telemetry

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/modules/optimizer"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Raw samples older than this are deleted by the maintenance job.
// Snapshot freshness is governed separately by telemetry_max_sample_age_sec.
const observationRetentionSeconds = 7 * 24 * 3600

// ConfigSource supplies the tunable smoothing parameters. The settings
// service satisfies this directly.
type ConfigSource interface {
	Get(key string) (interface{}, error)
}

// Service ingests venue rate samples and derives the smoothed rates and
// risk scores that parameterize allocation requests.
type Service struct {
	repo   *Repository
	oracle domain.RateOracle
	config ConfigSource
	venueA domain.Venue
	venueB domain.Venue
	log    zerolog.Logger
}

// NewService creates a new telemetry service
func NewService(repo *Repository, oracle domain.RateOracle, config ConfigSource, venueA, venueB domain.Venue, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		oracle: oracle,
		config: config,
		venueA: venueA,
		venueB: venueB,
		log:    log.With().Str("service", "telemetry").Logger(),
	}
}

// intSetting reads a numeric setting, falling back on read failure or
// unknown key
func (s *Service) intSetting(key string, fallback int) int {
	value, err := s.config.Get(key)
	if err != nil || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// admissible filters polled and streamed samples the same way: only the
// configured venue pair, only real observation windows.
func (s *Service) admissible(sample domain.RateSample) bool {
	if sample.Venue != s.venueA.ID && sample.Venue != s.venueB.ID {
		s.log.Warn().Str("venue", sample.Venue).Msg("Dropping sample for unknown venue")
		return false
	}
	if sample.PeriodSeconds == 0 {
		s.log.Warn().Str("venue", sample.Venue).Msg("Dropping sample with zero observation window")
		return false
	}
	return true
}

// Poll fetches one sample per venue from the oracle, records them, and
// recomputes both venue snapshots. Returns the number of samples stored.
func (s *Service) Poll(ctx context.Context, now int64) (int, error) {
	samples, err := s.oracle.VenueRates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read venue rates: %w", err)
	}

	inserted := 0
	for _, sample := range samples {
		if !s.admissible(sample) {
			continue
		}
		if err := s.repo.InsertObservation(sample.Venue, sample.GrossRateBps, sample.PeriodSeconds, now); err != nil {
			return inserted, err
		}
		inserted++
	}

	for _, venue := range []string{s.venueA.ID, s.venueB.ID} {
		if _, err := s.ComputeSnapshot(venue, now); err != nil {
			return inserted, fmt.Errorf("failed to compute snapshot for %s: %w", venue, err)
		}
	}

	s.log.Debug().Int("samples", inserted).Msg("Telemetry poll complete")
	return inserted, nil
}

// Record stores one streamed sample and refreshes that venue's snapshot.
// Returns false when the sample is dropped rather than stored.
func (s *Service) Record(sample domain.RateSample, now int64) (bool, error) {
	if !s.admissible(sample) {
		return false, nil
	}
	if err := s.repo.InsertObservation(sample.Venue, sample.GrossRateBps, sample.PeriodSeconds, now); err != nil {
		return false, err
	}
	if _, err := s.ComputeSnapshot(sample.Venue, now); err != nil {
		return true, fmt.Errorf("failed to compute snapshot for %s: %w", sample.Venue, err)
	}
	return true, nil
}

// ComputeSnapshot derives a fresh snapshot for one venue from its recent
// observations. Returns nil without error when no usable samples exist.
func (s *Service) ComputeSnapshot(venue string, now int64) (*Snapshot, error) {
	smoothingWindow := s.intSetting("telemetry_smoothing_window", 12)
	riskWindow := s.intSetting("telemetry_risk_window", 24)
	maxAge := int64(s.intSetting("telemetry_max_sample_age_sec", 21600))
	useEMA := s.intSetting("telemetry_use_ema", 0) == 1

	fetch := smoothingWindow
	if riskWindow > fetch {
		fetch = riskWindow
	}
	observations, err := s.repo.RecentObservations(venue, fetch)
	if err != nil {
		return nil, err
	}

	// Drop anything older than the freshness horizon. Observations arrive
	// newest first; the smoothing below wants chronological order.
	cutoff := now - maxAge
	usable := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if obs.ObservedAt >= cutoff {
			usable = append(usable, obs)
		}
	}
	if len(usable) == 0 {
		return nil, nil
	}

	raw := make([]float64, len(usable))
	annual := make([]float64, len(usable))
	for i, obs := range usable {
		// Reverse into chronological order while converting
		j := len(usable) - 1 - i
		raw[j] = float64(obs.GrossRateBps)
		annual[j] = float64(obs.GrossRateBps) * float64(fixedmath.SecondsPerYear) / float64(obs.PeriodSeconds)
	}

	smoothedRaw := smooth(raw, smoothingWindow, useEMA)
	smoothedAnnual := smooth(annual, smoothingWindow, useEMA)
	if smoothedAnnual > float64(math.MaxUint32) || smoothedRaw > float64(math.MaxUint32) {
		return nil, fmt.Errorf("smoothed rate for %s overflows: %w", venue, fixedmath.ErrOverflow)
	}

	snap := &Snapshot{
		Venue:         venue,
		SmoothedBps:   uint32(math.Round(smoothedRaw)),
		AnnualizedBps: uint32(math.Round(smoothedAnnual)),
		RiskScore:     riskScore(annual, riskWindow),
		WindowSize:    len(usable),
		ComputedAt:    now,
	}
	if err := s.repo.InsertSnapshot(snap); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("venue", venue).
		Uint32("annualized_bps", snap.AnnualizedBps).
		Uint32("risk_score", snap.RiskScore).
		Int("window", snap.WindowSize).
		Msg("Venue snapshot computed")
	return snap, nil
}

// smooth reduces a chronological rate series to one value. Short series
// fall back to a plain mean, matching how indicators degrade gracefully
// before their warm-up period fills.
func smooth(rates []float64, window int, useEMA bool) float64 {
	if len(rates) == 0 {
		return 0
	}
	if len(rates) < window || window < 2 {
		return stat.Mean(rates, nil)
	}

	var series []float64
	if useEMA {
		series = talib.Ema(rates, window)
	} else {
		series = talib.Sma(rates, window)
	}
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return stat.Mean(rates[len(rates)-window:], nil)
	}
	return last
}

// riskScore maps the dispersion of the annualized rate series onto
// 0..10,000: the coefficient of variation scaled to basis points, capped
// at a full wipe-out score.
func riskScore(annual []float64, window int) uint32 {
	if len(annual) > window && window >= 2 {
		annual = annual[len(annual)-window:]
	}
	if len(annual) < 2 {
		return 0
	}

	mean := stat.Mean(annual, nil)
	if mean <= 0 {
		return 0
	}
	sd := stat.StdDev(annual, nil)
	score := math.Round(sd / mean * float64(fixedmath.MaxRiskScore))
	if score >= float64(fixedmath.MaxRiskScore) {
		return uint32(fixedmath.MaxRiskScore)
	}
	if score < 0 {
		return 0
	}
	return uint32(score)
}

// AdviseRequest assembles the optimizer request for the current cycle
// from the latest venue snapshots. Rates arrive pre-annualized, so the
// request carries yearly observation windows.
func (s *Service) AdviseRequest(ctx context.Context, principal *big.Int, projectionPeriods uint32) (optimizer.Request, error) {
	snapA, err := s.freshSnapshot(s.venueA.ID)
	if err != nil {
		return optimizer.Request{}, err
	}
	snapB, err := s.freshSnapshot(s.venueB.ID)
	if err != nil {
		return optimizer.Request{}, err
	}

	return optimizer.Request{
		Principal:         principal,
		RateABps:          snapA.AnnualizedBps,
		RateBBps:          snapB.AnnualizedBps,
		FeeABps:           s.venueA.FeeBps,
		FeeBBps:           s.venueB.FeeBps,
		RiskA:             snapA.RiskScore,
		RiskB:             snapB.RiskScore,
		PeriodASeconds:    fixedmath.SecondsPerYear,
		PeriodBSeconds:    fixedmath.SecondsPerYear,
		ProjectionPeriods: projectionPeriods,
	}, nil
}

// freshSnapshot returns the venue's latest snapshot, rejecting missing or
// stale ones so the loop never allocates on dead telemetry.
func (s *Service) freshSnapshot(venue string) (*Snapshot, error) {
	snap, err := s.repo.LatestSnapshot(venue)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoTelemetry, venue)
	}

	maxAge := int64(s.intSetting("telemetry_max_sample_age_sec", 21600))
	if time.Now().Unix()-snap.ComputedAt > maxAge {
		return nil, fmt.Errorf("%w: %s snapshot is stale", domain.ErrNoTelemetry, venue)
	}
	return snap, nil
}

// Preview runs the optimizer over current telemetry without touching any
// state: the dry-run behind the allocation preview endpoint.
func (s *Service) Preview(ctx context.Context, principal *big.Int, projectionPeriods uint32) (optimizer.Request, *optimizer.Response, error) {
	req, err := s.AdviseRequest(ctx, principal, projectionPeriods)
	if err != nil {
		return optimizer.Request{}, nil, err
	}
	resp, err := optimizer.Optimize(req)
	if err != nil {
		return req, nil, err
	}
	return req, resp, nil
}

// RunWarmup performs the initial telemetry fetch after credentials are
// first configured, so allocation requests can be served immediately.
func (s *Service) RunWarmup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inserted, err := s.Poll(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("telemetry warmup failed: %w", err)
	}
	s.log.Info().Int("samples", inserted).Msg("Telemetry warmup complete")
	return nil
}

// PruneStale deletes raw observations older than the retention horizon
func (s *Service) PruneStale(now int64) (int64, error) {
	pruned, err := s.repo.PruneObservations(now - observationRetentionSeconds)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		s.log.Debug().Int64("pruned", pruned).Msg("Stale observations pruned")
	}
	return pruned, nil
}

// Observations returns recent raw samples for a venue
func (s *Service) Observations(venue string, limit int) ([]Observation, error) {
	return s.repo.RecentObservations(venue, limit)
}

// Snapshots returns recent derived snapshots, all venues when venue is empty
func (s *Service) Snapshots(venue string, limit int) ([]Snapshot, error) {
	return s.repo.ListSnapshots(venue, limit)
}

// Venues returns the configured venue pair
func (s *Service) Venues() (domain.Venue, domain.Venue) {
	return s.venueA, s.venueB
}
