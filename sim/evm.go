package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"firstdeposit/chain"
)

var errStaticWrite = errors.New("sim: state modification in a static call")

// expScale is the 1e18 mantissa scale used by the lending contracts.
var expScale = uint256.NewInt(1_000_000_000_000_000_000)

func revert(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", chain.ErrReverted, fmt.Sprintf(format, args...))
}

// panicArithmetic mirrors Solidity's Panic(0x11) for checked arithmetic.
func panicArithmetic() error {
	return revert("panic: arithmetic underflow or overflow (0x11)")
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, panicArithmetic()
	}
	return out, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, panicArithmetic()
	}
	return out, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, panicArithmetic()
	}
	return out, nil
}

func checkedDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, revert("panic: division or modulo by zero (0x12)")
	}
	return new(uint256.Int).Div(a, b), nil
}

func balanceIn(ledger map[common.Address]*uint256.Int, addr common.Address) *uint256.Int {
	if v, ok := ledger[addr]; ok {
		return v
	}
	return new(uint256.Int)
}

func argAddress(args []interface{}, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, fmt.Errorf("sim: missing argument %d", i)
	}
	v, ok := args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("sim: argument %d is %T, want address", i, args[i])
	}
	return v, nil
}

func argUint(args []interface{}, i int) (*uint256.Int, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("sim: missing argument %d", i)
	}
	v, ok := args[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("sim: argument %d is %T, want uint256", i, args[i])
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("sim: argument %d overflows uint256", i)
	}
	return out, nil
}

func argUint8(args []interface{}, i int) (uint8, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("sim: missing argument %d", i)
	}
	v, ok := args[i].(uint8)
	if !ok {
		return 0, fmt.Errorf("sim: argument %d is %T, want uint8", i, args[i])
	}
	return v, nil
}

func argString(args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("sim: missing argument %d", i)
	}
	v, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("sim: argument %d is %T, want string", i, args[i])
	}
	return v, nil
}

func argBytes(args []interface{}, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("sim: missing argument %d", i)
	}
	v, ok := args[i].([]byte)
	if !ok {
		return nil, fmt.Errorf("sim: argument %d is %T, want bytes", i, args[i])
	}
	return v, nil
}

func requireMutable(exec *execContext) error {
	if exec.static {
		return errStaticWrite
	}
	return nil
}

func unknownMethod(name string) error {
	return revert("function %s is not implemented", name)
}
