package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"firstdeposit/chain"
)

// boundContract pairs an address and ABI with a backend. Unlike bind.BoundContract
// the sender is passed per transaction, which is what impersonation needs.
type boundContract struct {
	address common.Address
	abi     abi.ABI
	backend chain.Backend
}

func (c *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: pack %s: %w", method, err)
	}
	output, err := c.backend.Call(ctx, common.Address{}, c.address, input)
	if err != nil {
		return nil, fmt.Errorf("contracts: call %s on %s: %w", method, c.address.Hex(), err)
	}
	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack %s: %w", method, err)
	}
	return values, nil
}

func (c *boundContract) transact(ctx context.Context, from common.Address, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: pack %s: %w", method, err)
	}
	receipt, err := c.backend.Transact(ctx, from, c.address, input)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s on %s from %s: %w", method, c.address.Hex(), from.Hex(), err)
	}
	return receipt, nil
}

func (c *boundContract) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("contracts: %s returned %d values", method, len(values))
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contracts: %s returned %T, want uint256", method, values[0])
	}
	return out, nil
}

func (c *boundContract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("contracts: %s returned %d values", method, len(values))
	}
	out, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("contracts: %s returned %T, want address", method, values[0])
	}
	return out, nil
}

func (c *boundContract) callUint8(ctx context.Context, method string) (uint8, error) {
	values, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("contracts: %s returned %d values", method, len(values))
	}
	out, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("contracts: %s returned %T, want uint8", method, values[0])
	}
	return out, nil
}
