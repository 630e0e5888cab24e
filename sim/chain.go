// Package sim is an in-process development chain. Contracts are Go values
// reached only through ABI-encoded calldata, so anything driven through
// chain.Backend behaves the same here as against a Hardhat node.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"firstdeposit/chain"
)

var (
	errNoContract     = errors.New("sim: no contract at address")
	errUnknownFactory = errors.New("sim: no contract factory for artifact")
	errNonViewCall    = errors.New("sim: eth_call to a state-changing method")
	errClosed         = errors.New("sim: chain closed")
)

// DefaultAccounts matches the number of signers a Hardhat node starts with.
const DefaultAccounts = 20

type contract interface {
	contractABI() *abi.ABI
	invoke(exec *execContext, method *abi.Method, args []interface{}) ([]interface{}, error)
}

type factory func(exec *execContext, args []interface{}) (contract, error)

// execContext is the message context of one call frame.
type execContext struct {
	chain  *Chain
	sender common.Address
	self   common.Address
	static bool
}

// Chain is a single-node, instantly mining simulated chain.
type Chain struct {
	mu           sync.Mutex
	signers      []common.Address
	impersonated map[common.Address]bool
	nonces       map[common.Address]uint64
	ether        map[common.Address]*big.Int
	contracts    map[common.Address]contract
	factories    map[string]factory
	receipts     map[common.Hash]*gethtypes.Receipt
	block        uint64
	closed       bool
}

// NewChain creates a chain with n deterministic funded signers.
func NewChain(n int) (*Chain, error) {
	if n <= 0 {
		n = DefaultAccounts
	}
	c := &Chain{
		impersonated: make(map[common.Address]bool),
		nonces:       make(map[common.Address]uint64),
		ether:        make(map[common.Address]*big.Int),
		contracts:    make(map[common.Address]contract),
		receipts:     make(map[common.Hash]*gethtypes.Receipt),
	}
	startingEther := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))
	for i := 0; i < n; i++ {
		seed := crypto.Keccak256([]byte(fmt.Sprintf("firstdeposit/sim/signer/%d", i)))
		key, err := crypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("sim: derive signer %d: %w", i, err)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		c.signers = append(c.signers, addr)
		c.ether[addr] = new(big.Int).Set(startingEther)
	}
	c.factories = map[string]factory{
		tokenArtifact:     newToken,
		delegateArtifact:  newDelegate,
		delegatorArtifact: newDelegator,
	}
	return c, nil
}

// Accounts returns the signer addresses in creation order.
func (c *Chain) Accounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.signers...), nil
}

// BlockNumber returns the head block height.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// EtherBalance returns the native balance of addr.
func (c *Chain) EtherBalance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.ether[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Receipt looks up a mined transaction.
func (c *Chain) Receipt(hash common.Hash) (*gethtypes.Receipt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	return receipt, ok
}

func (c *Chain) Impersonate(ctx context.Context, addr common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.impersonated[addr] = true
	return nil
}

func (c *Chain) StopImpersonating(ctx context.Context, addr common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.impersonated, addr)
	return nil
}

func (c *Chain) SetBalance(ctx context.Context, addr common.Address, wei *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wei == nil || wei.Sign() < 0 {
		return fmt.Errorf("sim: balance must be non-negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ether[addr] = new(big.Int).Set(wei)
	return nil
}

// Close marks the chain unusable.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Call executes a view method without mining a block.
func (c *Chain) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	target, ok := c.contracts[to]
	if !ok {
		return nil, nil
	}
	method, args, err := decodeCall(target, data)
	if err != nil {
		return nil, err
	}
	if !method.IsConstant() {
		return nil, fmt.Errorf("%w: %s", errNonViewCall, method.Name)
	}
	exec := &execContext{chain: c, sender: from, self: to, static: true}
	out, err := target.invoke(exec, method, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

// Transact mines a transaction from an unlocked or impersonated sender.
func (c *Chain) Transact(ctx context.Context, from, to common.Address, data []byte) (*gethtypes.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSender(from); err != nil {
		return nil, err
	}

	var execErr error
	if target, ok := c.contracts[to]; ok {
		method, args, err := decodeCall(target, data)
		if err != nil {
			execErr = err
		} else {
			exec := &execContext{chain: c, sender: from, self: to}
			_, execErr = target.invoke(exec, method, args)
		}
	}
	receipt := c.mine(from, data, execErr == nil)
	if execErr != nil {
		return nil, fmt.Errorf("%w (tx %s)", execErr, receipt.TxHash.Hex())
	}
	return receipt, nil
}

// Deploy instantiates the Go contract registered under the deployment name.
// Bytecode is not interpreted.
func (c *Chain) Deploy(ctx context.Context, from common.Address, deployment chain.Deployment) (*gethtypes.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSender(from); err != nil {
		return nil, err
	}
	build, ok := c.factories[deployment.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownFactory, deployment.Name)
	}
	args, err := canonicalArgs(deployment)
	if err != nil {
		return nil, err
	}

	addr := crypto.CreateAddress(from, c.nonces[from])
	exec := &execContext{chain: c, sender: from, self: addr}
	instance, buildErr := build(exec, args)
	if buildErr == nil {
		c.contracts[addr] = instance
	}
	receipt := c.mine(from, nil, buildErr == nil)
	if buildErr != nil {
		return nil, fmt.Errorf("sim: deploy %s: %w", deployment.Name, buildErr)
	}
	receipt.ContractAddress = addr
	return receipt, nil
}

func (c *Chain) checkSender(from common.Address) error {
	if c.closed {
		return errClosed
	}
	if c.impersonated[from] {
		return nil
	}
	for _, signer := range c.signers {
		if signer == from {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", chain.ErrUnknownAccount, from.Hex())
}

func (c *Chain) mine(from common.Address, data []byte, ok bool) *gethtypes.Receipt {
	nonce := c.nonces[from]
	c.nonces[from] = nonce + 1
	c.block++

	hash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(nonce).Bytes(), new(big.Int).SetUint64(c.block).Bytes(), data)
	receipt := &gethtypes.Receipt{
		Type:        gethtypes.DynamicFeeTxType,
		Status:      gethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(c.block),
		Logs:        []*gethtypes.Log{},
	}
	if !ok {
		receipt.Status = gethtypes.ReceiptStatusFailed
	}
	c.receipts[hash] = receipt
	return receipt
}

func (c *Chain) install(addr common.Address, instance contract) {
	c.contracts[addr] = instance
}

func decodeCall(target contract, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, revert("function selector was not recognized and there's no fallback function")
	}
	method, err := target.contractABI().MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("function selector was not recognized and there's no fallback function")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode %s arguments: %v", chain.ErrReverted, method.Name, err)
	}
	return method, args, nil
}

// canonicalArgs round-trips constructor arguments through the ABI so contracts
// see exactly the types a node would decode.
func canonicalArgs(deployment chain.Deployment) ([]interface{}, error) {
	if deployment.ABI == nil {
		return nil, nil
	}
	packed, err := deployment.PackArgs()
	if err != nil {
		return nil, err
	}
	if len(deployment.ABI.Constructor.Inputs) == 0 {
		return nil, nil
	}
	args, err := deployment.ABI.Constructor.Inputs.Unpack(packed)
	if err != nil {
		return nil, fmt.Errorf("sim: decode %s constructor: %w", deployment.Name, err)
	}
	return args, nil
}
