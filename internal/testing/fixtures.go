package testing

import (
	"math/big"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Amount builds a whole-unit fixed-point amount for tests
func Amount(units int64) *big.Int {
	return fixedmath.Units(units)
}

// AmountString builds a fixed-point amount from its decimal string form.
// Panics on malformed input so fixtures fail loudly.
func AmountString(s string) *big.Int {
	v, err := fixedmath.ParseAmount(s)
	if err != nil {
		panic("bad amount fixture: " + s)
	}
	return v
}

// NewVenueFixtures returns the two standard test venues
func NewVenueFixtures() (domain.Venue, domain.Venue) {
	venueA := domain.Venue{
		ID:          "venue-a",
		Destination: "2034",
		FeeBps:      30,
	}
	venueB := domain.Venue{
		ID:          "venue-b",
		Destination: "2032",
		FeeBps:      50,
	}
	return venueA, venueB
}

// NewDispatchFixture returns a dispatch request with sane defaults
func NewDispatchFixture(venue string, amount *big.Int) domain.DispatchRequest {
	return domain.DispatchRequest{
		ID:              "test-dispatch-" + venue,
		Venue:           venue,
		Destination:     "2034",
		Beneficiary:     "vault-pool",
		Amount:          new(big.Int).Set(amount),
		ExecutionBudget: Amount(1),
	}
}
