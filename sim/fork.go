package sim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Fork describes the pre-existing lending deployment installed by
// NewCompoundFork.
type Fork struct {
	Comptroller       common.Address
	Admin             common.Address
	InterestRateModel common.Address
	Markets           []common.Address
}

func derivedAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("firstdeposit/sim/" + label)))
}

// NewCompoundFork returns a chain that already holds a Comptroller at
// comptrollerAddr, administered by an account that is not one of the signers,
// with one listed market using a deployed interest rate model.
func NewCompoundFork(comptrollerAddr common.Address, accounts int) (*Chain, *Fork, error) {
	c, err := NewChain(accounts)
	if err != nil {
		return nil, nil, err
	}
	fork := &Fork{
		Comptroller:       comptrollerAddr,
		Admin:             derivedAddress("timelock"),
		InterestRateModel: derivedAddress("jump-rate-model"),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.contracts[comptrollerAddr]; exists {
		return nil, nil, fmt.Errorf("sim: address %s already has code", comptrollerAddr.Hex())
	}
	gate := newComptroller(fork.Admin)
	c.install(comptrollerAddr, gate)
	c.install(fork.InterestRateModel, interestRateModel{})

	underlying := derivedAddress("existing-underlying")
	c.install(underlying, newTokenState("Dai Stablecoin", "DAI", 18))
	implementation := derivedAddress("existing-delegate")
	c.install(implementation, &delegate{})

	marketAddr := derivedAddress("existing-market")
	existing := &delegator{
		underlying:     underlying,
		comptroller:    comptrollerAddr,
		rateModel:      fork.InterestRateModel,
		implementation: implementation,
		admin:          fork.Admin,
		name:           "Existing Dai",
		symbol:         "cDAI",
		decimals:       8,
		initialRate:    uint256.MustFromDecimal("200000000000000000000000000"),
		accountTokens:  make(map[common.Address]*uint256.Int),
	}
	exec := &execContext{chain: c, sender: fork.Admin, self: marketAddr}
	if err := existing.initialize(exec); err != nil {
		return nil, nil, err
	}
	c.install(marketAddr, existing)
	if _, err := gate.supportMarket(exec, fork.Admin, marketAddr); err != nil {
		return nil, nil, err
	}
	fork.Markets = append(fork.Markets, marketAddr)
	return c, fork, nil
}
