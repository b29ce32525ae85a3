package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Service owns treasury accounting: reserve accumulation, epoch settlement,
// and the partner registry.
type Service struct {
	repo      *Repository
	purchaser domain.UnitPurchaser
	log       zerolog.Logger
}

// NewService creates a new treasury service
func NewService(repo *Repository, purchaser domain.UnitPurchaser, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		purchaser: purchaser,
		log:       log.With().Str("service", "treasury").Logger(),
	}
}

// Repo exposes the repository for read-only query surfaces
func (s *Service) Repo() *Repository {
	return s.repo
}

// Accumulate adds the treasury's basis-point slice of a harvested yield
// amount to the reserve and returns the skimmed amount. Pure accounting,
// no external calls.
func (s *Service) Accumulate(tx *sql.Tx, yieldAmount *big.Int, treasuryBps uint32, now int64) (*big.Int, error) {
	if yieldAmount == nil || yieldAmount.Sign() == 0 {
		return nil, domain.ErrZeroAmount
	}
	if !fixedmath.ValidAmount(yieldAmount) {
		return nil, fixedmath.ErrInvalidInput
	}
	if !fixedmath.ValidBps(treasuryBps) {
		return nil, domain.ErrInvalidBasisPoints
	}

	skim, err := fixedmath.MulBps(yieldAmount, treasuryBps)
	if err != nil {
		return nil, err
	}
	if skim.Sign() > 0 {
		if err := s.repo.AddToReserveTx(tx, skim, now); err != nil {
			return nil, err
		}
	}
	return skim, nil
}

// EpochReady reports whether a TriggerEpoch call would pass its gates:
// cadence elapsed, reserve non-empty, at least one active partner.
func (s *Service) EpochReady(now int64) (bool, error) {
	state, err := s.repo.GetState()
	if err != nil {
		return false, err
	}
	if now < state.LastEpochMarker+state.EpochInterval {
		return false, nil
	}
	if state.Reserve.Sign() == 0 {
		return false, nil
	}

	partners, err := s.repo.ListPartners()
	if err != nil {
		return false, err
	}
	for _, p := range partners {
		if p.Active {
			return true, nil
		}
	}
	return false, nil
}

// TriggerEpoch settles one epoch: spends the whole reserve on an external
// unit purchase and distributes the units across active partners with an
// equal-weight split, the remainder going to the first active partner in
// registration order.
//
// The reserve zeroing, marker advance, and count increment are committed
// to the transaction before the purchase goes out. A purchase failure or
// a unit count below minAcceptableUnits fails the call, and the caller's
// rollback unwinds the advance with it.
func (s *Service) TriggerEpoch(ctx context.Context, tx *sql.Tx, minAcceptableUnits *big.Int, now int64) (*Settlement, error) {
	state, err := s.repo.GetStateTx(tx)
	if err != nil {
		return nil, err
	}
	if now < state.LastEpochMarker+state.EpochInterval {
		return nil, domain.ErrEpochNotReady
	}
	if state.Reserve.Sign() == 0 {
		return nil, domain.ErrEmptyReserve
	}

	partners, err := s.repo.ListActivePartnersTx(tx)
	if err != nil {
		return nil, err
	}
	if len(partners) == 0 {
		return nil, domain.ErrNoActivePartners
	}

	// Intent first, external call second
	if err := s.repo.SettleStateTx(tx, now, now); err != nil {
		return nil, err
	}

	units, err := s.purchaser.PurchaseUnits(ctx, state.Reserve)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPurchaseFailed, err)
	}
	if units == nil {
		return nil, fmt.Errorf("%w: purchase returned no units", domain.ErrPurchaseFailed)
	}
	if minAcceptableUnits == nil {
		minAcceptableUnits = fixedmath.Zero()
	}
	if units.Cmp(minAcceptableUnits) < 0 {
		return nil, fmt.Errorf("%w: purchased %s, minimum %s",
			domain.ErrPurchaseBelowMinimum, units.String(), minAcceptableUnits.String())
	}

	per, remainder := new(big.Int).QuoRem(units, big.NewInt(int64(len(partners))), new(big.Int))

	epochID, err := s.repo.InsertEpochTx(tx, state.Reserve, units, len(partners), per, remainder, now)
	if err != nil {
		return nil, err
	}

	for i, p := range partners {
		share := per
		if i == 0 {
			// partners is ordered by position, so index 0 holds the
			// registration-order tie-break for the odd remainder
			share, err = fixedmath.CheckedAdd(per, remainder)
			if err != nil {
				return nil, err
			}
		}
		if err := s.repo.AddPartnerUnitsTx(tx, p.ID, share, now); err != nil {
			return nil, err
		}
		if err := s.repo.InsertPayoutTx(tx, epochID, p.ID, share, now); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Int64("epoch", epochID).
		Str("reserve_spent", state.Reserve.String()).
		Str("units", units.String()).
		Int("partners", len(partners)).
		Msg("Epoch settled")

	return &Settlement{
		EpochID:        epochID,
		ReserveSpent:   state.Reserve,
		UnitsPurchased: units,
		PartnerCount:   len(partners),
		PerPartner:     per,
		Remainder:      remainder,
	}, nil
}

// AddPartner registers a partner id with its committed boost rate.
// Re-adding an active id fails; re-adding a removed id reactivates it,
// keeping its position and lifetime units.
func (s *Service) AddPartner(tx *sql.Tx, id string, boostRateBps uint32, now int64) error {
	if id == "" {
		return domain.ErrZeroIdentity
	}
	if !fixedmath.ValidBps(boostRateBps) {
		return domain.ErrInvalidBasisPoints
	}

	existing, err := s.repo.GetPartnerTx(tx, id)
	if err != nil {
		return err
	}
	if existing != nil && existing.Active {
		return domain.ErrAlreadyRegistered
	}
	if existing != nil {
		if err := s.repo.SetPartnerActiveTx(tx, id, true, boostRateBps, now); err != nil {
			return err
		}
		s.log.Info().Str("partner", id).Uint32("boost_rate_bps", boostRateBps).Msg("Partner reactivated")
		return nil
	}

	if err := s.repo.InsertPartnerTx(tx, id, boostRateBps, now); err != nil {
		return err
	}
	s.log.Info().Str("partner", id).Uint32("boost_rate_bps", boostRateBps).Msg("Partner registered")
	return nil
}

// RemovePartner deactivates a partner id. History stays: the row keeps its
// position and lifetime units, only the active flag flips.
func (s *Service) RemovePartner(tx *sql.Tx, id string, now int64) error {
	if id == "" {
		return domain.ErrZeroIdentity
	}

	existing, err := s.repo.GetPartnerTx(tx, id)
	if err != nil {
		return err
	}
	if existing == nil || !existing.Active {
		return domain.ErrNotRegistered
	}

	if err := s.repo.SetPartnerActiveTx(tx, id, false, existing.BoostRateBps, now); err != nil {
		return err
	}
	s.log.Info().Str("partner", id).Msg("Partner removed")
	return nil
}

// State returns the current treasury state
func (s *Service) State() (*State, error) {
	return s.repo.GetState()
}
