package sim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"firstdeposit/contracts"
)

const (
	delegateArtifact  = contracts.DelegateContract
	delegatorArtifact = contracts.DelegatorContract
)

var (
	delegateABI = contracts.ParsedDelegateABI()
	cTokenABI   = contracts.ParsedCTokenABI()
)

// delegate is the CErc20Delegate implementation. It holds no state of its own;
// the delegator runs its logic in its own storage.
type delegate struct{}

func newDelegate(_ *execContext, _ []interface{}) (contract, error) {
	return &delegate{}, nil
}

func (d *delegate) contractABI() *abi.ABI { return &delegateABI }

func (d *delegate) invoke(_ *execContext, method *abi.Method, _ []interface{}) ([]interface{}, error) {
	if method.Name == "_becomeImplementation" {
		// Called directly the delegate's own admin slot is empty.
		return nil, revert("only the admin may call _becomeImplementation")
	}
	return nil, unknownMethod(method.Name)
}

// delegator is a CErc20Delegator market with the public behaviour of a
// Compound v2 CToken that has no borrows: the exchange rate is the stored
// initial rate while supply is zero, and cash over supply otherwise.
type delegator struct {
	underlying     common.Address
	comptroller    common.Address
	rateModel      common.Address
	implementation common.Address
	admin          common.Address
	name           string
	symbol         string
	decimals       uint8
	initialRate    *uint256.Int
	totalSupply    *uint256.Int
	totalBorrows   *uint256.Int
	totalReserves  *uint256.Int
	accountTokens  map[common.Address]*uint256.Int
}

func newDelegator(exec *execContext, args []interface{}) (contract, error) {
	var (
		d   = &delegator{accountTokens: make(map[common.Address]*uint256.Int)}
		err error
	)
	if d.underlying, err = argAddress(args, 0); err != nil {
		return nil, err
	}
	if d.comptroller, err = argAddress(args, 1); err != nil {
		return nil, err
	}
	if d.rateModel, err = argAddress(args, 2); err != nil {
		return nil, err
	}
	if d.initialRate, err = argUint(args, 3); err != nil {
		return nil, err
	}
	if d.name, err = argString(args, 4); err != nil {
		return nil, err
	}
	if d.symbol, err = argString(args, 5); err != nil {
		return nil, err
	}
	if d.decimals, err = argUint8(args, 6); err != nil {
		return nil, err
	}
	if d.admin, err = argAddress(args, 7); err != nil {
		return nil, err
	}
	if d.implementation, err = argAddress(args, 8); err != nil {
		return nil, err
	}
	if _, err = argBytes(args, 9); err != nil {
		return nil, err
	}
	if err := d.initialize(exec); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *delegator) initialize(exec *execContext) error {
	if d.initialRate.IsZero() {
		return revert("initial exchange rate must be greater than zero.")
	}
	if _, ok := exec.chain.contracts[d.comptroller].(*comptroller); !ok {
		return revert("marker method returned false")
	}
	if _, ok := exec.chain.contracts[d.rateModel].(interestRateModel); !ok {
		return revert("marker method returned false")
	}
	if _, ok := exec.chain.contracts[d.underlying].(*token); !ok {
		return revert("underlying %s is not an ERC-20", d.underlying.Hex())
	}
	if _, ok := exec.chain.contracts[d.implementation].(*delegate); !ok {
		return revert("implementation %s is not a CErc20Delegate", d.implementation.Hex())
	}
	d.totalSupply = new(uint256.Int)
	d.totalBorrows = new(uint256.Int)
	d.totalReserves = new(uint256.Int)
	return nil
}

func (d *delegator) contractABI() *abi.ABI { return &cTokenABI }

func (d *delegator) invoke(exec *execContext, method *abi.Method, args []interface{}) ([]interface{}, error) {
	switch method.Name {
	case "name":
		return []interface{}{d.name}, nil
	case "symbol":
		return []interface{}{d.symbol}, nil
	case "decimals":
		return []interface{}{d.decimals}, nil
	case "admin":
		return []interface{}{d.admin}, nil
	case "underlying":
		return []interface{}{d.underlying}, nil
	case "comptroller":
		return []interface{}{d.comptroller}, nil
	case "implementation":
		return []interface{}{d.implementation}, nil
	case "interestRateModel":
		return []interface{}{d.rateModel}, nil
	case "isCToken":
		return []interface{}{true}, nil
	case "totalSupply":
		return []interface{}{d.totalSupply.ToBig()}, nil
	case "balanceOf":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return []interface{}{balanceIn(d.accountTokens, owner).ToBig()}, nil
	case "getCash":
		cash, err := d.cash(exec)
		if err != nil {
			return nil, err
		}
		return []interface{}{cash.ToBig()}, nil
	case "exchangeRateStored":
		rate, err := d.exchangeRate(exec)
		if err != nil {
			return nil, err
		}
		return []interface{}{rate.ToBig()}, nil
	}

	if err := requireMutable(exec); err != nil {
		return nil, err
	}
	switch method.Name {
	case "mint":
		amount, err := argUint(args, 0)
		if err != nil {
			return nil, err
		}
		if err := d.mint(exec, exec.sender, amount); err != nil {
			return nil, err
		}
		return []interface{}{uint256.NewInt(codeNoError).ToBig()}, nil
	case "redeem":
		tokens, err := argUint(args, 0)
		if err != nil {
			return nil, err
		}
		if err := d.redeem(exec, exec.sender, tokens); err != nil {
			return nil, err
		}
		return []interface{}{uint256.NewInt(codeNoError).ToBig()}, nil
	}
	return nil, unknownMethod(method.Name)
}

func (d *delegator) asset(exec *execContext) (*token, error) {
	t, ok := exec.chain.contracts[d.underlying].(*token)
	if !ok {
		return nil, fmt.Errorf("%w: underlying %s", errNoContract, d.underlying.Hex())
	}
	return t, nil
}

func (d *delegator) gate(exec *execContext) (*comptroller, error) {
	c, ok := exec.chain.contracts[d.comptroller].(*comptroller)
	if !ok {
		return nil, fmt.Errorf("%w: comptroller %s", errNoContract, d.comptroller.Hex())
	}
	return c, nil
}

func (d *delegator) cash(exec *execContext) (*uint256.Int, error) {
	asset, err := d.asset(exec)
	if err != nil {
		return nil, err
	}
	return asset.balanceOf(exec.self), nil
}

func (d *delegator) exchangeRate(exec *execContext) (*uint256.Int, error) {
	if d.totalSupply.IsZero() {
		return new(uint256.Int).Set(d.initialRate), nil
	}
	cash, err := d.cash(exec)
	if err != nil {
		return nil, err
	}
	backing, err := checkedAdd(cash, d.totalBorrows)
	if err != nil {
		return nil, err
	}
	if backing, err = checkedSub(backing, d.totalReserves); err != nil {
		return nil, err
	}
	scaled, err := checkedMul(backing, expScale)
	if err != nil {
		return nil, err
	}
	return checkedDiv(scaled, d.totalSupply)
}

// mint credits amount*1e18/exchangeRate shares, truncated. Nothing is written
// until the underlying has been pulled in.
func (d *delegator) mint(exec *execContext, minter common.Address, amount *uint256.Int) error {
	gate, err := d.gate(exec)
	if err != nil {
		return err
	}
	if code := gate.mintAllowed(exec.self); code != codeNoError {
		return revert("MintComptrollerRejection(%d)", code)
	}
	asset, err := d.asset(exec)
	if err != nil {
		return err
	}
	rate, err := d.exchangeRate(exec)
	if err != nil {
		return err
	}
	scaled, err := checkedMul(amount, expScale)
	if err != nil {
		return err
	}
	minted, err := checkedDiv(scaled, rate)
	if err != nil {
		return err
	}
	supply, err := checkedAdd(d.totalSupply, minted)
	if err != nil {
		return err
	}
	balance, err := checkedAdd(balanceIn(d.accountTokens, minter), minted)
	if err != nil {
		return err
	}
	if err := asset.transferFrom(exec.self, minter, exec.self, amount); err != nil {
		return err
	}
	d.totalSupply = supply
	d.accountTokens[minter] = balance
	return nil
}

// redeem burns tokens and pays out exchangeRate*tokens/1e18 of underlying.
func (d *delegator) redeem(exec *execContext, redeemer common.Address, tokens *uint256.Int) error {
	gate, err := d.gate(exec)
	if err != nil {
		return err
	}
	if code := gate.redeemAllowed(exec.self); code != codeNoError {
		return revert("RedeemComptrollerRejection(%d)", code)
	}
	asset, err := d.asset(exec)
	if err != nil {
		return err
	}
	rate, err := d.exchangeRate(exec)
	if err != nil {
		return err
	}
	product, err := checkedMul(rate, tokens)
	if err != nil {
		return err
	}
	payout := new(uint256.Int).Div(product, expScale)
	cash := asset.balanceOf(exec.self)
	if cash.Lt(payout) {
		return revert("RedeemTransferOutNotPossible()")
	}
	supply, err := checkedSub(d.totalSupply, tokens)
	if err != nil {
		return err
	}
	balance, err := checkedSub(balanceIn(d.accountTokens, redeemer), tokens)
	if err != nil {
		return err
	}
	if err := asset.transfer(exec.self, redeemer, payout); err != nil {
		return err
	}
	d.totalSupply = supply
	d.accountTokens[redeemer] = balance
	return nil
}
