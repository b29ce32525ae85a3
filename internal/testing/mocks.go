package testing

import (
	"context"
	"math/big"
	"sync"

	"github.com/polkapulse/vault/internal/domain"
)

// MockRewardSource is a mock implementation of domain.RewardSource for testing
type MockRewardSource struct {
	mu          sync.RWMutex
	pending     *big.Int
	claimed     *big.Int
	claimAmount *big.Int
	claimCalls  int
	pendingErr  error
	claimErr    error
	drainOnCall bool
}

// NewMockRewardSource creates a new mock reward source
func NewMockRewardSource() *MockRewardSource {
	return &MockRewardSource{
		pending:     big.NewInt(0),
		claimed:     big.NewInt(0),
		drainOnCall: true,
	}
}

// SetPending sets the pending reward to report
func (m *MockRewardSource) SetPending(amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = new(big.Int).Set(amount)
}

// SetPendingError sets the error returned by PendingReward
func (m *MockRewardSource) SetPendingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingErr = err
}

// SetClaimError sets the error returned by ClaimReward
func (m *MockRewardSource) SetClaimError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimErr = err
}

// SetClaimAmount overrides what ClaimReward returns, independent of the
// pending balance. Models a stale pending read.
func (m *MockRewardSource) SetClaimAmount(amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimAmount = new(big.Int).Set(amount)
}

// ClaimCalls returns how many times ClaimReward was invoked
func (m *MockRewardSource) ClaimCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimCalls
}

// PendingReward implements domain.RewardSource
func (m *MockRewardSource) PendingReward(ctx context.Context, account string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	return new(big.Int).Set(m.pending), nil
}

// ClaimReward implements domain.RewardSource.
// Returns the pending amount and zeroes it, like a real claim would.
func (m *MockRewardSource) ClaimReward(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	amount := new(big.Int).Set(m.pending)
	if m.claimAmount != nil {
		amount = new(big.Int).Set(m.claimAmount)
	}
	m.claimed.Add(m.claimed, amount)
	if m.drainOnCall {
		m.pending.SetInt64(0)
	}
	return amount, nil
}

// Verify interface implementation
var _ domain.RewardSource = (*MockRewardSource)(nil)

// MockAssetSurface is a mock implementation of domain.AssetSurface for testing
type MockAssetSurface struct {
	mu          sync.RWMutex
	balances    map[string]*big.Int
	transfers   []TransferRecord
	pulls       []TransferRecord
	balanceErr  error
	transferErr error
	pullErr     error
}

// TransferRecord captures one transfer or pull for assertions
type TransferRecord struct {
	Account string
	Amount  *big.Int
}

// NewMockAssetSurface creates a new mock asset surface
func NewMockAssetSurface() *MockAssetSurface {
	return &MockAssetSurface{
		balances: make(map[string]*big.Int),
	}
}

// SetBalance sets the balance reported for an account
func (m *MockAssetSurface) SetBalance(account string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Set(amount)
}

// SetBalanceError sets the error returned by BalanceOf
func (m *MockAssetSurface) SetBalanceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceErr = err
}

// SetTransferError sets the error returned by Transfer
func (m *MockAssetSurface) SetTransferError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferErr = err
}

// SetPullError sets the error returned by Pull
func (m *MockAssetSurface) SetPullError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullErr = err
}

// Transfers returns all recorded outbound transfers
func (m *MockAssetSurface) Transfers() []TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]TransferRecord, len(m.transfers))
	copy(result, m.transfers)
	return result
}

// Pulls returns all recorded inbound pulls
func (m *MockAssetSurface) Pulls() []TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]TransferRecord, len(m.pulls))
	copy(result, m.pulls)
	return result
}

// BalanceOf implements domain.AssetSurface
func (m *MockAssetSurface) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	if balance, ok := m.balances[account]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

// Transfer implements domain.AssetSurface
func (m *MockAssetSurface) Transfer(ctx context.Context, to string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transferErr != nil {
		return m.transferErr
	}
	m.transfers = append(m.transfers, TransferRecord{Account: to, Amount: new(big.Int).Set(amount)})
	if balance, ok := m.balances[to]; ok {
		balance.Add(balance, amount)
	} else {
		m.balances[to] = new(big.Int).Set(amount)
	}
	return nil
}

// Pull implements domain.AssetSurface
func (m *MockAssetSurface) Pull(ctx context.Context, from string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pullErr != nil {
		return m.pullErr
	}
	m.pulls = append(m.pulls, TransferRecord{Account: from, Amount: new(big.Int).Set(amount)})
	if balance, ok := m.balances[from]; ok {
		balance.Sub(balance, amount)
	}
	return nil
}

// Verify interface implementation
var _ domain.AssetSurface = (*MockAssetSurface)(nil)

// MockRemoteExecutor is a mock implementation of domain.RemoteExecutor for testing
type MockRemoteExecutor struct {
	mu         sync.RWMutex
	dispatches []domain.DispatchRequest
	err        error
	failAfter  int // fail dispatches after this many successes (0 = never)
}

// NewMockRemoteExecutor creates a new mock remote executor
func NewMockRemoteExecutor() *MockRemoteExecutor {
	return &MockRemoteExecutor{
		dispatches: make([]domain.DispatchRequest, 0),
	}
}

// SetError sets the error to return
func (m *MockRemoteExecutor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailAfter makes Dispatch fail once the given number of calls succeeded
func (m *MockRemoteExecutor) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
}

// Dispatches returns all recorded dispatch requests
func (m *MockRemoteExecutor) Dispatches() []domain.DispatchRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]domain.DispatchRequest, len(m.dispatches))
	copy(result, m.dispatches)
	return result
}

// Dispatch implements domain.RemoteExecutor
func (m *MockRemoteExecutor) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && (m.failAfter == 0 || len(m.dispatches) >= m.failAfter) {
		return m.err
	}
	m.dispatches = append(m.dispatches, req)
	return nil
}

// Verify interface implementation
var _ domain.RemoteExecutor = (*MockRemoteExecutor)(nil)

// MockUnitPurchaser is a mock implementation of domain.UnitPurchaser for testing
type MockUnitPurchaser struct {
	mu        sync.RWMutex
	unitsOut  *big.Int
	purchases []*big.Int
	err       error
}

// NewMockUnitPurchaser creates a new mock unit purchaser
func NewMockUnitPurchaser() *MockUnitPurchaser {
	return &MockUnitPurchaser{
		unitsOut:  big.NewInt(0),
		purchases: make([]*big.Int, 0),
	}
}

// SetUnitsOut sets the unit count returned by PurchaseUnits
func (m *MockUnitPurchaser) SetUnitsOut(units *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitsOut = new(big.Int).Set(units)
}

// SetError sets the error to return
func (m *MockUnitPurchaser) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Purchases returns the spend amounts of all recorded purchases
func (m *MockUnitPurchaser) Purchases() []*big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*big.Int, len(m.purchases))
	for i, p := range m.purchases {
		result[i] = new(big.Int).Set(p)
	}
	return result
}

// PurchaseUnits implements domain.UnitPurchaser
func (m *MockUnitPurchaser) PurchaseUnits(ctx context.Context, spend *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.purchases = append(m.purchases, new(big.Int).Set(spend))
	return new(big.Int).Set(m.unitsOut), nil
}

// Verify interface implementation
var _ domain.UnitPurchaser = (*MockUnitPurchaser)(nil)

// MockRateOracle is a mock implementation of domain.RateOracle for testing
type MockRateOracle struct {
	mu      sync.RWMutex
	samples []domain.RateSample
	err     error
	calls   int
}

// NewMockRateOracle creates a new mock rate oracle
func NewMockRateOracle() *MockRateOracle {
	return &MockRateOracle{}
}

// SetSamples sets the samples returned by VenueRates
func (m *MockRateOracle) SetSamples(samples []domain.RateSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append([]domain.RateSample(nil), samples...)
}

// SetError sets the error to return
func (m *MockRateOracle) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times VenueRates was invoked
func (m *MockRateOracle) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// VenueRates implements domain.RateOracle
func (m *MockRateOracle) VenueRates(ctx context.Context) ([]domain.RateSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.RateSample(nil), m.samples...), nil
}

// Verify interface implementation
var _ domain.RateOracle = (*MockRateOracle)(nil)
