package sim

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"firstdeposit/contracts"
)

const tokenArtifact = contracts.TokenContract

var tokenABI = contracts.ParsedTokenABI()

// token is an OpenZeppelin-style ERC-20 with an open mint. An allowance of
// MaxUint256 is never decremented.
type token struct {
	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

func newToken(_ *execContext, args []interface{}) (contract, error) {
	decimals, err := argUint8(args, 0)
	if err != nil {
		return nil, err
	}
	return newTokenState("Token", "TKN", decimals), nil
}

func newTokenState(name, symbol string, decimals uint8) *token {
	return &token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *token) contractABI() *abi.ABI { return &tokenABI }

func (t *token) invoke(exec *execContext, method *abi.Method, args []interface{}) ([]interface{}, error) {
	switch method.Name {
	case "name":
		return []interface{}{t.name}, nil
	case "symbol":
		return []interface{}{t.symbol}, nil
	case "decimals":
		return []interface{}{t.decimals}, nil
	case "totalSupply":
		return []interface{}{t.totalSupply.ToBig()}, nil
	case "balanceOf":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return []interface{}{t.balanceOf(owner).ToBig()}, nil
	case "allowance":
		owner, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		spender, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		return []interface{}{t.allowance(owner, spender).ToBig()}, nil
	}

	if err := requireMutable(exec); err != nil {
		return nil, err
	}
	switch method.Name {
	case "transfer":
		to, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 1)
		if err != nil {
			return nil, err
		}
		if err := t.transfer(exec.sender, to, amount); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "approve":
		spender, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 1)
		if err != nil {
			return nil, err
		}
		if err := t.approve(exec.sender, spender, amount); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "transferFrom":
		from, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		to, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 2)
		if err != nil {
			return nil, err
		}
		if err := t.transferFrom(exec.sender, from, to, amount); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "mint":
		to, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := argUint(args, 1)
		if err != nil {
			return nil, err
		}
		return nil, t.mint(to, amount)
	}
	return nil, unknownMethod(method.Name)
}

func (t *token) balanceOf(owner common.Address) *uint256.Int {
	return new(uint256.Int).Set(balanceIn(t.balances, owner))
}

func (t *token) allowance(owner, spender common.Address) *uint256.Int {
	if byOwner, ok := t.allowances[owner]; ok {
		if v, ok := byOwner[spender]; ok {
			return new(uint256.Int).Set(v)
		}
	}
	return new(uint256.Int)
}

func (t *token) approve(owner, spender common.Address, amount *uint256.Int) error {
	if (owner == common.Address{}) {
		return revert("ERC20: approve from the zero address")
	}
	if (spender == common.Address{}) {
		return revert("ERC20: approve to the zero address")
	}
	t.setAllowance(owner, spender, amount)
	return nil
}

func (t *token) setAllowance(owner, spender common.Address, amount *uint256.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
}

func (t *token) transfer(from, to common.Address, amount *uint256.Int) error {
	if (from == common.Address{}) {
		return revert("ERC20: transfer from the zero address")
	}
	if (to == common.Address{}) {
		return revert("ERC20: transfer to the zero address")
	}
	fromBalance := balanceIn(t.balances, from)
	if fromBalance.Lt(amount) {
		return revert("ERC20: transfer amount exceeds balance")
	}
	if from == to {
		return nil
	}
	toBalance, err := checkedAdd(balanceIn(t.balances, to), amount)
	if err != nil {
		return err
	}
	t.balances[from] = new(uint256.Int).Sub(fromBalance, amount)
	t.balances[to] = toBalance
	return nil
}

// transferFrom validates the allowance and balance before touching either.
func (t *token) transferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	current := t.allowance(from, spender)
	infinite := current.Eq(new(uint256.Int).SetAllOne())
	if !infinite && current.Lt(amount) {
		return revert("ERC20: insufficient allowance")
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	if !infinite {
		t.setAllowance(from, spender, new(uint256.Int).Sub(current, amount))
	}
	return nil
}

func (t *token) mint(to common.Address, amount *uint256.Int) error {
	if (to == common.Address{}) {
		return revert("ERC20: mint to the zero address")
	}
	supply, err := checkedAdd(t.totalSupply, amount)
	if err != nil {
		return err
	}
	balance, err := checkedAdd(balanceIn(t.balances, to), amount)
	if err != nil {
		return err
	}
	t.totalSupply = supply
	t.balances[to] = balance
	return nil
}
