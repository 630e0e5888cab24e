package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

type nodeState struct {
	mu           sync.Mutex
	accounts     []common.Address
	impersonated map[common.Address]bool
	balances     map[common.Address]*big.Int
	nonces       map[common.Address]uint64
	receipts     map[common.Hash]*gethtypes.Receipt
	sent         []sendTxArgs
	hiddenPolls  int
	failStatus   bool
	revertOnSend bool
	callResult   []byte
}

func (s *nodeState) unlocked(addr common.Address) bool {
	for _, a := range s.accounts {
		if a == addr {
			return true
		}
	}
	return s.impersonated[addr]
}

type fakeEth struct{ state *nodeState }

func (f *fakeEth) Accounts() []common.Address {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	return append([]common.Address(nil), f.state.accounts...)
}

func (f *fakeEth) SendTransaction(args sendTxArgs) (common.Hash, error) {
	s := f.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked(args.From) {
		return common.Hash{}, errors.New("unknown account " + args.From.Hex())
	}
	if s.revertOnSend {
		return common.Hash{}, errors.New("VM Exception while processing transaction: reverted with reason string 'nope'")
	}
	nonce := s.nonces[args.From]
	s.nonces[args.From] = nonce + 1
	s.sent = append(s.sent, args)

	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(nonce).Bytes(), args.Data)
	receipt := &gethtypes.Receipt{
		Status:      gethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		Logs:        []*gethtypes.Log{},
		BlockNumber: big.NewInt(int64(len(s.sent))),
	}
	if s.failStatus {
		receipt.Status = gethtypes.ReceiptStatusFailed
	}
	if args.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(args.From, nonce)
	}
	s.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeEth) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	s := f.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hiddenPolls > 0 {
		s.hiddenPolls--
		return nil, nil
	}
	return s.receipts[hash], nil
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	if block != "latest" {
		return nil, errors.New("unexpected block tag " + block)
	}
	return f.state.callResult, nil
}

type fakeHardhat struct{ state *nodeState }

func (f *fakeHardhat) ImpersonateAccount(addr common.Address) bool {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	f.state.impersonated[addr] = true
	return true
}

func (f *fakeHardhat) StopImpersonatingAccount(addr common.Address) bool {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	delete(f.state.impersonated, addr)
	return true
}

func (f *fakeHardhat) SetBalance(addr common.Address, wei *hexutil.Big) bool {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	f.state.balances[addr] = wei.ToInt()
	return true
}

func newFakeNode(t *testing.T, namespace string) (*nodeState, *RPCBackend) {
	t.Helper()
	state := &nodeState{
		accounts:     []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		impersonated: map[common.Address]bool{},
		balances:     map[common.Address]*big.Int{},
		nonces:       map[common.Address]uint64{},
		receipts:     map[common.Hash]*gethtypes.Receipt{},
	}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &fakeEth{state: state}); err != nil {
		t.Fatalf("register eth: %v", err)
	}
	if err := server.RegisterName(namespace, &fakeHardhat{state: state}); err != nil {
		t.Fatalf("register %s: %v", namespace, err)
	}
	t.Cleanup(server.Stop)

	backend := NewRPCBackend(rpc.DialInProc(server), RPCOptions{
		Dialect:        Dialect(namespace),
		ReceiptTimeout: time.Second,
		PollInterval:   time.Millisecond,
	})
	t.Cleanup(backend.Close)
	return state, backend
}

func TestRPCBackendAccounts(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	accounts, err := backend.Accounts(context.Background())
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != len(state.accounts) || accounts[0] != state.accounts[0] || accounts[1] != state.accounts[1] {
		t.Fatalf("accounts = %v, want %v", accounts, state.accounts)
	}
}

func TestRPCBackendTransactWaitsForReceipt(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.hiddenPolls = 3

	to := common.HexToAddress("0xbeef")
	data := []byte{0xa9, 0x05, 0x9c, 0xbb}
	receipt, err := backend.Transact(context.Background(), state.accounts[0], to, data)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		t.Fatalf("receipt status = %d", receipt.Status)
	}
	if len(state.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(state.sent))
	}
	if *state.sent[0].To != to || !bytes.Equal(data, state.sent[0].Data) {
		t.Fatalf("unexpected transaction: %+v", state.sent[0])
	}
}

func TestRPCBackendFailedReceiptIsRevert(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.failStatus = true

	_, err := backend.Transact(context.Background(), state.accounts[0], common.HexToAddress("0xbeef"), nil)
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestRPCBackendNodeRevertMessage(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.revertOnSend = true

	_, err := backend.Transact(context.Background(), state.accounts[0], common.HexToAddress("0xbeef"), nil)
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestRPCBackendReceiptTimeout(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.hiddenPolls = 1 << 30

	_, err := backend.Transact(context.Background(), state.accounts[0], common.HexToAddress("0xbeef"), nil)
	if !errors.Is(err, ErrReceiptTimeout) {
		t.Fatalf("expected ErrReceiptTimeout, got %v", err)
	}
}

func TestRPCBackendReceiptWaitCancelled(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.hiddenPolls = 1 << 30

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := backend.Transact(ctx, state.accounts[0], common.HexToAddress("0xbeef"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrReceiptTimeout) {
		t.Fatalf("cancellation reported as receipt timeout: %v", err)
	}
}

func TestRPCBackendImpersonation(t *testing.T) {
	for _, dialect := range []string{"hardhat", "anvil"} {
		t.Run(dialect, func(t *testing.T) {
			state, backend := newFakeNode(t, dialect)
			admin := common.HexToAddress("0x6d903f6003cca6255D85CcA4D3B5E5146dC33925")
			target := common.HexToAddress("0xbeef")
			ctx := context.Background()

			if _, err := backend.Transact(ctx, admin, target, nil); !errors.Is(err, ErrUnknownAccount) {
				t.Fatalf("expected ErrUnknownAccount before impersonation, got %v", err)
			}
			if err := backend.Impersonate(ctx, admin); err != nil {
				t.Fatalf("impersonate: %v", err)
			}
			if err := backend.SetBalance(ctx, admin, big.NewInt(1e18)); err != nil {
				t.Fatalf("set balance: %v", err)
			}
			if _, err := backend.Transact(ctx, admin, target, nil); err != nil {
				t.Fatalf("transact as impersonated admin: %v", err)
			}
			if got := state.balances[admin]; got == nil || got.Cmp(big.NewInt(1e18)) != 0 {
				t.Fatalf("admin balance = %v, want 1e18", got)
			}

			if err := backend.StopImpersonating(ctx, admin); err != nil {
				t.Fatalf("stop impersonating: %v", err)
			}
			if _, err := backend.Transact(ctx, admin, target, nil); !errors.Is(err, ErrUnknownAccount) {
				t.Fatalf("expected ErrUnknownAccount after stop, got %v", err)
			}
		})
	}
}

func TestRPCBackendDeployAppendsConstructorArgs(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	parsed, err := abi.JSON(strings.NewReader(`[{"type":"constructor","inputs":[{"name":"decimals_","type":"uint8"}]}]`))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	bytecode := []byte{0x60, 0x80, 0x60, 0x40}
	receipt, err := backend.Deploy(context.Background(), state.accounts[0], Deployment{
		Name:     "Token",
		ABI:      &parsed,
		Bytecode: bytecode,
		Args:     []interface{}{uint8(18)},
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if want := crypto.CreateAddress(state.accounts[0], 0); receipt.ContractAddress != want {
		t.Fatalf("contract address = %s, want %s", receipt.ContractAddress.Hex(), want.Hex())
	}

	sent := state.sent[0]
	if sent.To != nil {
		t.Fatalf("deploy sent to %s, want contract creation", sent.To.Hex())
	}
	if len(sent.Data) != len(bytecode)+32 || sent.Data[len(sent.Data)-1] != 18 {
		t.Fatalf("unexpected creation data %x", sent.Data)
	}
}

func TestRPCBackendDeployWithoutBytecode(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	_, err := backend.Deploy(context.Background(), state.accounts[0], Deployment{Name: "Token"})
	if !errors.Is(err, ErrNoBytecode) {
		t.Fatalf("expected ErrNoBytecode, got %v", err)
	}
	if len(state.sent) != 0 {
		t.Fatalf("deploy without bytecode sent %d transactions", len(state.sent))
	}
}

func TestRPCBackendCall(t *testing.T) {
	state, backend := newFakeNode(t, "hardhat")
	state.callResult = common.LeftPadBytes([]byte{0x01}, 32)

	out, err := backend.Call(context.Background(), state.accounts[0], common.HexToAddress("0xbeef"), []byte{0x18, 0x16, 0x0d, 0xdd})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !bytes.Equal(state.callResult, out) {
		t.Fatalf("call result = %x, want %x", out, state.callResult)
	}
}
