package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"firstdeposit/chain"
)

// Market is a binding for a CErc20Delegator lending market.
type Market struct {
	contract boundContract
}

// NewMarket binds the market deployed at address.
func NewMarket(address common.Address, backend chain.Backend) *Market {
	return &Market{contract: boundContract{address: address, abi: cTokenABI, backend: backend}}
}

// Address returns the market contract address.
func (m *Market) Address() common.Address { return m.contract.address }

func (m *Market) Decimals(ctx context.Context) (uint8, error) {
	return m.contract.callUint8(ctx, "decimals")
}

// InterestRateModel returns the model the market accrues interest with.
func (m *Market) InterestRateModel(ctx context.Context) (common.Address, error) {
	return m.contract.callAddress(ctx, "interestRateModel")
}

func (m *Market) Underlying(ctx context.Context) (common.Address, error) {
	return m.contract.callAddress(ctx, "underlying")
}

func (m *Market) Implementation(ctx context.Context) (common.Address, error) {
	return m.contract.callAddress(ctx, "implementation")
}

// GetCash returns the underlying balance held by the market.
func (m *Market) GetCash(ctx context.Context) (*big.Int, error) {
	return m.contract.callUint(ctx, "getCash")
}

func (m *Market) TotalSupply(ctx context.Context) (*big.Int, error) {
	return m.contract.callUint(ctx, "totalSupply")
}

func (m *Market) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return m.contract.callUint(ctx, "balanceOf", owner)
}

func (m *Market) ExchangeRateStored(ctx context.Context) (*big.Int, error) {
	return m.contract.callUint(ctx, "exchangeRateStored")
}

// Mint deposits mintAmount of underlying from the sender for market shares.
func (m *Market) Mint(ctx context.Context, from common.Address, mintAmount *big.Int) error {
	_, err := m.contract.transact(ctx, from, "mint", mintAmount)
	return err
}

// Redeem burns redeemTokens shares of the sender for underlying.
func (m *Market) Redeem(ctx context.Context, from common.Address, redeemTokens *big.Int) error {
	_, err := m.contract.transact(ctx, from, "redeem", redeemTokens)
	return err
}
