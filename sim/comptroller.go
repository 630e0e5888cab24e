package sim

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"firstdeposit/contracts"
)

// Comptroller error codes returned instead of reverting.
const (
	codeNoError             = 0
	codeUnauthorized        = 1
	codeMarketNotListed     = 9
	codeMarketAlreadyListed = 10
)

var (
	comptrollerABI = contracts.ParsedComptrollerABI()
	irmABI         = contracts.ParsedInterestRateModelABI()
)

type comptroller struct {
	admin   common.Address
	listed  map[common.Address]bool
	markets []common.Address
}

func newComptroller(admin common.Address) *comptroller {
	return &comptroller{admin: admin, listed: make(map[common.Address]bool)}
}

func (c *comptroller) contractABI() *abi.ABI { return &comptrollerABI }

func (c *comptroller) invoke(exec *execContext, method *abi.Method, args []interface{}) ([]interface{}, error) {
	switch method.Name {
	case "admin":
		return []interface{}{c.admin}, nil
	case "isComptroller":
		return []interface{}{true}, nil
	case "getAllMarkets":
		return []interface{}{append([]common.Address{}, c.markets...)}, nil
	case "markets":
		market, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return []interface{}{c.listed[market], new(big.Int), false}, nil
	case "_supportMarket":
		if err := requireMutable(exec); err != nil {
			return nil, err
		}
		market, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		code, err := c.supportMarket(exec, exec.sender, market)
		if err != nil {
			return nil, err
		}
		return []interface{}{big.NewInt(code)}, nil
	}
	return nil, unknownMethod(method.Name)
}

// supportMarket reports an unauthorised sender or a duplicate listing through
// the returned code; only a non-CToken target reverts.
func (c *comptroller) supportMarket(exec *execContext, sender, market common.Address) (int64, error) {
	if sender != c.admin {
		return codeUnauthorized, nil
	}
	if c.listed[market] {
		return codeMarketAlreadyListed, nil
	}
	if _, ok := exec.chain.contracts[market].(*delegator); !ok {
		return 0, revert("target is not a CToken")
	}
	c.listed[market] = true
	c.markets = append(c.markets, market)
	return codeNoError, nil
}

func (c *comptroller) mintAllowed(market common.Address) int64 {
	if !c.listed[market] {
		return codeMarketNotListed
	}
	return codeNoError
}

func (c *comptroller) redeemAllowed(market common.Address) int64 {
	if !c.listed[market] {
		return codeMarketNotListed
	}
	return codeNoError
}

// interestRateModel only answers the marker call; no market borrows in the
// simulator so rates are never consulted.
type interestRateModel struct{}

func (interestRateModel) contractABI() *abi.ABI { return &irmABI }

func (interestRateModel) invoke(_ *execContext, method *abi.Method, _ []interface{}) ([]interface{}, error) {
	if method.Name == "isInterestRateModel" {
		return []interface{}{true}, nil
	}
	return nil, unknownMethod(method.Name)
}
