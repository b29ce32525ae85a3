// Package harvest gates the claiming of external yield behind a governed
// threshold. The gate tracks a single upstream reward source; a harvest
// records its marker before the claim call goes out, so a re-entrant
// invocation always observes fresh state.
package harvest

import "math/big"

// State is the singleton harvest row in vault.db
type State struct {
	Threshold         *big.Int
	LastHarvestMarker int64
	LifetimeHarvested *big.Int
	UpdatedAt         int64
}

// Record is one completed harvest in the log. Fee and Net are filled in
// by the yield loop after the protocol-fee split.
type Record struct {
	ID        int64
	Gross     *big.Int
	Fee       *big.Int
	Net       *big.Int
	Marker    int64
	CreatedAt int64
}
