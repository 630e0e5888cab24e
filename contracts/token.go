package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"firstdeposit/chain"
)

// Token is a binding for the underlying ERC-20 test token.
type Token struct {
	contract boundContract
}

// NewToken binds the token deployed at address.
func NewToken(address common.Address, backend chain.Backend) *Token {
	return &Token{contract: boundContract{address: address, abi: tokenABI, backend: backend}}
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.contract.address }

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	return t.contract.callUint8(ctx, "decimals")
}

func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	return t.contract.callUint(ctx, "totalSupply")
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.contract.callUint(ctx, "balanceOf", account)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.contract.callUint(ctx, "allowance", owner, spender)
}

// Mint credits amount to the recipient. The test token does not restrict
// who may mint.
func (t *Token) Mint(ctx context.Context, from, to common.Address, amount *big.Int) error {
	_, err := t.contract.transact(ctx, from, "mint", to, amount)
	return err
}

func (t *Token) Approve(ctx context.Context, from, spender common.Address, amount *big.Int) error {
	_, err := t.contract.transact(ctx, from, "approve", spender, amount)
	return err
}

func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	_, err := t.contract.transact(ctx, from, "transfer", to, amount)
	return err
}
