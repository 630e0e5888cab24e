package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReverted is returned when a transaction or call was rejected by the EVM.
	ErrReverted = errors.New("chain: execution reverted")
	// ErrNoBytecode is returned when a deployment is attempted without creation code.
	ErrNoBytecode = errors.New("chain: artifact has no bytecode")
	// ErrReceiptTimeout is returned when a receipt does not appear in time.
	ErrReceiptTimeout = errors.New("chain: timed out waiting for receipt")
	// ErrUnknownAccount is returned when the node cannot sign for the sender.
	ErrUnknownAccount = errors.New("chain: sender is not unlocked")
)

// Backend is the development chain the scenario runs against. Every
// transaction names its sender explicitly so that unlocked signers and
// impersonated accounts are handled the same way.
type Backend interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error)
	Transact(ctx context.Context, from, to common.Address, data []byte) (*gethtypes.Receipt, error)
	Deploy(ctx context.Context, from common.Address, deployment Deployment) (*gethtypes.Receipt, error)
	Impersonate(ctx context.Context, addr common.Address) error
	StopImpersonating(ctx context.Context, addr common.Address) error
	SetBalance(ctx context.Context, addr common.Address, wei *big.Int) error
	Close()
}

// Deployment describes a contract creation. Args are the Go values of the
// constructor inputs and are packed with ABI.
type Deployment struct {
	Name     string
	ABI      *abi.ABI
	Bytecode []byte
	Args     []interface{}
}

// PackArgs ABI-encodes the constructor arguments.
func (d Deployment) PackArgs() ([]byte, error) {
	if d.ABI == nil {
		if len(d.Args) > 0 {
			return nil, fmt.Errorf("chain: deployment %s has arguments but no abi", d.Name)
		}
		return nil, nil
	}
	packed, err := d.ABI.Pack("", d.Args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s constructor: %w", d.Name, err)
	}
	return packed, nil
}

// CreationCode returns bytecode followed by the packed constructor arguments.
func (d Deployment) CreationCode() ([]byte, error) {
	if len(d.Bytecode) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBytecode, d.Name)
	}
	args, err := d.PackArgs()
	if err != nil {
		return nil, err
	}
	code := make([]byte, 0, len(d.Bytecode)+len(args))
	code = append(code, d.Bytecode...)
	return append(code, args...), nil
}

// CheckReceipt converts a failed receipt into ErrReverted.
func CheckReceipt(receipt *gethtypes.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("chain: transaction receipt missing")
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s", ErrReverted, receipt.TxHash.Hex())
	}
	return nil
}
