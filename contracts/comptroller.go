package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"firstdeposit/chain"
)

// ErrNoMarkets is returned when the comptroller lists no markets to copy an
// interest rate model from.
var ErrNoMarkets = errors.New("contracts: comptroller has no markets")

// Comptroller is a binding for the Unitroller proxy of the lending protocol.
type Comptroller struct {
	contract boundContract
}

// NewComptroller binds the comptroller at address.
func NewComptroller(address common.Address, backend chain.Backend) *Comptroller {
	return &Comptroller{contract: boundContract{address: address, abi: comptrollerABI, backend: backend}}
}

// Address returns the comptroller address.
func (c *Comptroller) Address() common.Address { return c.contract.address }

// Admin returns the account allowed to list markets.
func (c *Comptroller) Admin(ctx context.Context) (common.Address, error) {
	return c.contract.callAddress(ctx, "admin")
}

func (c *Comptroller) GetAllMarkets(ctx context.Context) ([]common.Address, error) {
	values, err := c.contract.call(ctx, "getAllMarkets")
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("contracts: getAllMarkets returned %d values", len(values))
	}
	markets, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("contracts: getAllMarkets returned %T", values[0])
	}
	return markets, nil
}

// IsListed reports whether the market has been supported.
func (c *Comptroller) IsListed(ctx context.Context, market common.Address) (bool, error) {
	values, err := c.contract.call(ctx, "markets", market)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, fmt.Errorf("contracts: markets returned no values")
	}
	listed, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("contracts: markets returned %T", values[0])
	}
	return listed, nil
}

// SupportMarket lists market. The comptroller signals an unauthorised sender
// with an error code rather than a revert, so callers should confirm with
// IsListed.
func (c *Comptroller) SupportMarket(ctx context.Context, from, market common.Address) error {
	_, err := c.contract.transact(ctx, from, "_supportMarket", market)
	return err
}

// LatestInterestRateModel reads the interest rate model of the most recently
// listed market.
func LatestInterestRateModel(ctx context.Context, comptroller *Comptroller, backend chain.Backend) (common.Address, error) {
	markets, err := comptroller.GetAllMarkets(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(markets) == 0 {
		return common.Address{}, ErrNoMarkets
	}
	latest := NewMarket(markets[len(markets)-1], backend)
	return latest.InterestRateModel(ctx)
}
