package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Dialect selects the administrative namespace of the development node.
type Dialect string

const (
	DialectHardhat Dialect = "hardhat"
	DialectAnvil   Dialect = "anvil"
)

const (
	defaultReceiptTimeout = 30 * time.Second
	defaultPollInterval   = 250 * time.Millisecond
)

// RPCOptions configures an RPCBackend.
type RPCOptions struct {
	Dialect           Dialect
	ReceiptTimeout    time.Duration
	PollInterval      time.Duration
	RequestsPerSecond float64
	// Gas is passed with every transaction when non-zero; otherwise the node estimates.
	Gas uint64
}

// RPCBackend drives a Hardhat or Anvil node over JSON-RPC using its unlocked
// accounts and account impersonation.
type RPCBackend struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	opts    RPCOptions
	limiter *rate.Limiter
	latency metric.Float64Histogram
}

// Dial connects to the node at endpoint.
func Dial(ctx context.Context, endpoint string, opts RPCOptions) (*RPCBackend, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain: rpc endpoint required")
	}
	client, err := rpc.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	return NewRPCBackend(client, opts), nil
}

// NewRPCBackend wraps an established RPC client.
func NewRPCBackend(client *rpc.Client, opts RPCOptions) *RPCBackend {
	if opts.Dialect == "" {
		opts.Dialect = DialectHardhat
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	b := &RPCBackend{
		rpc:  client,
		eth:  ethclient.NewClient(client),
		opts: opts,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	histogram, err := otel.Meter("firstdeposit/chain").Float64Histogram(
		"chain.rpc.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of JSON-RPC requests to the development node."),
	)
	if err == nil {
		b.latency = histogram
	}
	return b
}

// Close releases the underlying connection.
func (b *RPCBackend) Close() {
	if b == nil || b.rpc == nil {
		return
	}
	b.rpc.Close()
}

func (b *RPCBackend) invoke(ctx context.Context, method string, fn func(context.Context) error) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("chain: rate limit %s: %w", method, err)
		}
	}
	start := time.Now()
	err := fn(ctx)
	if b.latency != nil {
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		b.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("method", method)))
	}
	return err
}

func (b *RPCBackend) adminMethod(name string) string {
	return string(b.opts.Dialect) + "_" + name
}

// Accounts lists the node's unlocked signers.
func (b *RPCBackend) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := b.invoke(ctx, "eth_accounts", func(ctx context.Context) error {
		return b.rpc.CallContext(ctx, &accounts, "eth_accounts")
	})
	if err != nil {
		return nil, fmt.Errorf("chain: list accounts: %w", err)
	}
	return accounts, nil
}

// Call executes a read-only call against the latest block.
func (b *RPCBackend) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := b.invoke(ctx, "eth_call", func(ctx context.Context) error {
		var callErr error
		out, callErr = b.eth.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Transact sends a transaction from an unlocked or impersonated account and
// waits for its receipt.
func (b *RPCBackend) Transact(ctx context.Context, from, to common.Address, data []byte) (*gethtypes.Receipt, error) {
	return b.send(ctx, sendTxArgs{From: from, To: &to, Data: data})
}

// Deploy creates a contract and returns the receipt carrying its address.
func (b *RPCBackend) Deploy(ctx context.Context, from common.Address, deployment Deployment) (*gethtypes.Receipt, error) {
	code, err := deployment.CreationCode()
	if err != nil {
		return nil, err
	}
	receipt, err := b.send(ctx, sendTxArgs{From: from, Data: code})
	if err != nil {
		return nil, fmt.Errorf("chain: deploy %s: %w", deployment.Name, err)
	}
	if (receipt.ContractAddress == common.Address{}) {
		return nil, fmt.Errorf("chain: deploy %s: receipt has no contract address", deployment.Name)
	}
	return receipt, nil
}

// Impersonate lets the node sign for addr without its key.
func (b *RPCBackend) Impersonate(ctx context.Context, addr common.Address) error {
	method := b.adminMethod("impersonateAccount")
	err := b.invoke(ctx, method, func(ctx context.Context) error {
		return b.rpc.CallContext(ctx, nil, method, addr)
	})
	if err != nil {
		return fmt.Errorf("chain: impersonate %s: %w", addr.Hex(), err)
	}
	return nil
}

// StopImpersonating revokes a previous Impersonate.
func (b *RPCBackend) StopImpersonating(ctx context.Context, addr common.Address) error {
	method := b.adminMethod("stopImpersonatingAccount")
	err := b.invoke(ctx, method, func(ctx context.Context) error {
		return b.rpc.CallContext(ctx, nil, method, addr)
	})
	if err != nil {
		return fmt.Errorf("chain: stop impersonating %s: %w", addr.Hex(), err)
	}
	return nil
}

// SetBalance overwrites the ether balance of addr.
func (b *RPCBackend) SetBalance(ctx context.Context, addr common.Address, wei *big.Int) error {
	if wei == nil || wei.Sign() < 0 {
		return fmt.Errorf("chain: balance must be non-negative")
	}
	method := b.adminMethod("setBalance")
	err := b.invoke(ctx, method, func(ctx context.Context) error {
		return b.rpc.CallContext(ctx, nil, method, addr, hexutil.EncodeBig(wei))
	})
	if err != nil {
		return fmt.Errorf("chain: set balance %s: %w", addr.Hex(), err)
	}
	return nil
}

type sendTxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
	Data hexutil.Bytes   `json:"data"`
}

func (b *RPCBackend) send(ctx context.Context, args sendTxArgs) (*gethtypes.Receipt, error) {
	if b.opts.Gas > 0 {
		gas := hexutil.Uint64(b.opts.Gas)
		args.Gas = &gas
	}
	var hash common.Hash
	err := b.invoke(ctx, "eth_sendTransaction", func(ctx context.Context) error {
		return b.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args)
	})
	if err != nil {
		return nil, classify(err)
	}
	receipt, err := b.waitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := CheckReceipt(receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (b *RPCBackend) waitReceipt(parent context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(parent, b.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	for {
		var receipt *gethtypes.Receipt
		err := b.invoke(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
			var fetchErr error
			receipt, fetchErr = b.eth.TransactionReceipt(ctx, hash)
			return fetchErr
		})
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, receiptWaitErr(parent, hash)
			}
			return nil, fmt.Errorf("chain: fetch receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, receiptWaitErr(parent, hash)
		case <-ticker.C:
		}
	}
}

// receiptWaitErr reports why polling stopped: the caller's context ending is
// passed through, only the local deadline is a receipt timeout.
func receiptWaitErr(parent context.Context, hash common.Hash) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("chain: wait for receipt %s: %w", hash.Hex(), err)
	}
	return fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
}

// classify maps node error messages onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "revert"):
		return fmt.Errorf("%w: %v", ErrReverted, err)
	case strings.Contains(msg, "unknown account"), strings.Contains(msg, "no signer available"):
		return fmt.Errorf("%w: %v", ErrUnknownAccount, err)
	default:
		return err
	}
}
