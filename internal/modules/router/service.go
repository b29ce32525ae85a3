package router

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/modules/optimizer"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// executionBudgetBps is the remote execution fee allowance carved out per
// dispatch, in basis points of the deployed amount.
const executionBudgetBps = 10

// Service implements the yield routing pass
type Service struct {
	repo        *Repository
	executor    domain.RemoteExecutor
	venueA      domain.Venue
	venueB      domain.Venue
	beneficiary string
	log         zerolog.Logger
}

// NewService creates a new router service. beneficiary is the account
// credited on the remote side, normally the vault's own identity.
func NewService(repo *Repository, executor domain.RemoteExecutor, venueA, venueB domain.Venue, beneficiary string, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		executor:    executor,
		venueA:      venueA,
		venueB:      venueB,
		beneficiary: beneficiary,
		log:         log.With().Str("service", "router").Logger(),
	}
}

// Repo exposes the repository for read-only collaborators
func (s *Service) Repo() *Repository {
	return s.repo
}

// Venues returns the two configured venues, A first
func (s *Service) Venues() (domain.Venue, domain.Venue) {
	return s.venueA, s.venueB
}

// Route splits totalAmount per the optimizer's recommendation and
// dispatches one deployment request per selected venue. Execution state
// advances before any dispatch goes out; a rejected dispatch fails the
// call, and the surrounding transaction unwinds everything.
func (s *Service) Route(ctx context.Context, tx *sql.Tx, totalAmount *big.Int, req optimizer.Request, now int64) (*Result, error) {
	if totalAmount == nil || totalAmount.Sign() == 0 {
		return nil, domain.ErrZeroAllocation
	}

	resp, err := optimizer.Optimize(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOptimizerCallFailed, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidOptimizerResponse, err)
	}

	amountA, amountB, err := resp.SplitAmount(totalAmount)
	if err != nil {
		return nil, err
	}

	// Intent first, external calls second
	if err := s.repo.AdvanceTx(tx, now, now); err != nil {
		return nil, err
	}

	result := &Result{
		AmountA:        amountA,
		AmountB:        amountB,
		BlendedRateBps: resp.BlendedRateBps,
	}

	if resp.UseVenueA && amountA.Sign() > 0 {
		id, err := s.dispatch(ctx, tx, s.venueA, amountA, now)
		if err != nil {
			return nil, err
		}
		result.DispatchIDs = append(result.DispatchIDs, id)
	}
	if resp.UseVenueB && amountB.Sign() > 0 {
		id, err := s.dispatch(ctx, tx, s.venueB, amountB, now)
		if err != nil {
			return nil, err
		}
		result.DispatchIDs = append(result.DispatchIDs, id)
	}

	s.log.Info().
		Str("amount_a", amountA.String()).
		Str("amount_b", amountB.String()).
		Uint32("blended_bps", resp.BlendedRateBps).
		Int("dispatches", len(result.DispatchIDs)).
		Msg("Routed capital")
	return result, nil
}

// dispatch journals one deployment request and submits it
func (s *Service) dispatch(ctx context.Context, tx *sql.Tx, venue domain.Venue, amount *big.Int, now int64) (string, error) {
	budget, err := fixedmath.MulBps(amount, executionBudgetBps)
	if err != nil {
		return "", err
	}

	d := Dispatch{
		ID:              uuid.New().String(),
		Venue:           venue.ID,
		Destination:     venue.Destination,
		Beneficiary:     s.beneficiary,
		Amount:          amount,
		ExecutionBudget: budget,
		Status:          StatusSubmitted,
		CreatedAt:       now,
	}
	if err := s.repo.InsertDispatchTx(tx, d); err != nil {
		return "", err
	}

	err = s.executor.Dispatch(ctx, domain.DispatchRequest{
		ID:              d.ID,
		Venue:           d.Venue,
		Destination:     d.Destination,
		Beneficiary:     d.Beneficiary,
		Amount:          d.Amount,
		ExecutionBudget: d.ExecutionBudget,
	})
	if err != nil {
		return "", fmt.Errorf("%w: venue %s: %v", domain.ErrDispatchRejected, venue.ID, err)
	}

	if err := s.repo.SetDispatchStatusTx(tx, d.ID, StatusConfirmed); err != nil {
		return "", err
	}
	return d.ID, nil
}

// State returns the current router state
func (s *Service) State() (*State, error) {
	return s.repo.GetState()
}
