package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Amounts cross the wire as 18-decimal base-unit strings. parseWireAmount
// rejects anything the core's fixed-point domain would not accept.
func parseWireAmount(field, value string) (*big.Int, error) {
	amount, err := fixedmath.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("gateway sent malformed %s %q: %w", field, value, err)
	}
	return amount, nil
}

// PendingReward implements domain.RewardSource
func (c *Client) PendingReward(ctx context.Context, account string) (*big.Int, error) {
	var out struct {
		Pending string `json:"pending"`
	}
	path := "/v1/rewards/pending?account=" + url.QueryEscape(account)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return parseWireAmount("pending reward", out.Pending)
}

// ClaimReward implements domain.RewardSource. The claim target is the
// credentialed vault account; the gateway resolves it from the bearer key.
func (c *Client) ClaimReward(ctx context.Context) (*big.Int, error) {
	var out struct {
		Claimed string `json:"claimed"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/rewards/claim", struct{}{}, &out); err != nil {
		return nil, err
	}
	return parseWireAmount("claimed reward", out.Claimed)
}

// BalanceOf implements domain.AssetSurface
func (c *Client) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	path := "/v1/balances/" + url.PathEscape(account)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return parseWireAmount("balance", out.Balance)
}

// Transfer implements domain.AssetSurface
func (c *Client) Transfer(ctx context.Context, to string, amount *big.Int) error {
	body := map[string]string{
		"to":     to,
		"amount": amount.String(),
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/transfers", body, nil)
}

// Pull implements domain.AssetSurface
func (c *Client) Pull(ctx context.Context, from string, amount *big.Int) error {
	body := map[string]string{
		"from":   from,
		"amount": amount.String(),
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/pulls", body, nil)
}

// Dispatch implements domain.RemoteExecutor
func (c *Client) Dispatch(ctx context.Context, req domain.DispatchRequest) error {
	body := map[string]string{
		"id":               req.ID,
		"venue":            req.Venue,
		"destination":      req.Destination,
		"beneficiary":      req.Beneficiary,
		"amount":           req.Amount.String(),
		"execution_budget": req.ExecutionBudget.String(),
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/dispatches", body, nil)
}

// PurchaseUnits implements domain.UnitPurchaser
func (c *Client) PurchaseUnits(ctx context.Context, spend *big.Int) (*big.Int, error) {
	body := map[string]string{
		"spend": spend.String(),
	}
	var out struct {
		Units string `json:"units"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/units/purchase", body, &out); err != nil {
		return nil, err
	}
	return parseWireAmount("purchased units", out.Units)
}

// VenueRates implements domain.RateOracle
func (c *Client) VenueRates(ctx context.Context) ([]domain.RateSample, error) {
	var out struct {
		Rates []struct {
			Venue         string `json:"venue"`
			GrossRateBps  uint32 `json:"gross_rate_bps"`
			PeriodSeconds uint64 `json:"period_seconds"`
		} `json:"rates"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/venues/rates", nil, &out); err != nil {
		return nil, err
	}

	samples := make([]domain.RateSample, 0, len(out.Rates))
	for _, rate := range out.Rates {
		samples = append(samples, domain.RateSample{
			Venue:         rate.Venue,
			GrossRateBps:  rate.GrossRateBps,
			PeriodSeconds: rate.PeriodSeconds,
		})
	}
	return samples, nil
}

// Interface conformance
var (
	_ domain.RewardSource   = (*Client)(nil)
	_ domain.AssetSurface   = (*Client)(nil)
	_ domain.RemoteExecutor = (*Client)(nil)
	_ domain.UnitPurchaser  = (*Client)(nil)
	_ domain.RateOracle     = (*Client)(nil)
)
