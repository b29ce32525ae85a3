package harvest

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Service implements the threshold-gated harvest primitive
type Service struct {
	repo    *Repository
	rewards domain.RewardSource
	account string
	log     zerolog.Logger
}

// NewService creates a new harvest service. account is the vault's own
// identity at the reward source.
func NewService(repo *Repository, rewards domain.RewardSource, account string, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		rewards: rewards,
		account: account,
		log:     log.With().Str("service", "harvest").Logger(),
	}
}

// Repo exposes the repository for read-only collaborators
func (s *Service) Repo() *Repository {
	return s.repo
}

// PendingReward reads the claimable reward upstream. Pure read, no state change.
func (s *Service) PendingReward(ctx context.Context) (*big.Int, error) {
	pending, err := s.rewards.PendingReward(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending reward: %w", err)
	}
	return pending, nil
}

// ShouldHarvest reports whether the pending reward has reached the threshold
func (s *Service) ShouldHarvest(ctx context.Context) (bool, error) {
	state, err := s.repo.GetState()
	if err != nil {
		return false, err
	}
	pending, err := s.PendingReward(ctx)
	if err != nil {
		return false, err
	}
	return pending.Cmp(state.Threshold) >= 0, nil
}

// Harvest claims the pending reward. The threshold is re-checked against a
// fresh upstream read, and the marker is written before the claim call so
// any re-entrant invocation sees the gate already taken. Returns the gross
// harvested amount.
func (s *Service) Harvest(ctx context.Context, tx *sql.Tx, now int64) (*big.Int, error) {
	state, err := s.repo.GetStateTx(tx)
	if err != nil {
		return nil, err
	}

	pending, err := s.PendingReward(ctx)
	if err != nil {
		return nil, err
	}
	if pending.Cmp(state.Threshold) < 0 {
		return nil, domain.ErrBelowThreshold
	}

	// Intent first, external call second
	if err := s.repo.SetMarkerTx(tx, now, now); err != nil {
		return nil, err
	}

	harvested, err := s.rewards.ClaimReward(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalClaimFailed, err)
	}
	if harvested == nil || harvested.Sign() == 0 {
		return nil, fmt.Errorf("%w: claim returned zero", domain.ErrExternalClaimFailed)
	}

	if err := s.repo.AddLifetimeTx(tx, harvested, now); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("harvested", harvested.String()).
		Int64("marker", now).
		Msg("Harvested pending reward")
	return harvested, nil
}

// SetThreshold updates the harvest threshold. Zero is rejected to prevent
// micro-harvest griefing.
func (s *Service) SetThreshold(tx *sql.Tx, value *big.Int, now int64) error {
	if value == nil || value.Sign() == 0 {
		return domain.ErrZeroAmount
	}
	if !fixedmath.ValidAmount(value) {
		return fixedmath.ErrInvalidInput
	}
	if err := s.repo.SetThresholdTx(tx, value, now); err != nil {
		return err
	}
	s.log.Info().Str("threshold", value.String()).Msg("Harvest threshold updated")
	return nil
}

// State returns the current harvest state
func (s *Service) State() (*State, error) {
	return s.repo.GetState()
}
