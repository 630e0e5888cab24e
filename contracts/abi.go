package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TokenABI is the underlying test token: an ERC-20 with a configurable
// decimals constructor and an unrestricted mint.
const TokenABI = `[
	{"type":"constructor","inputs":[{"name":"decimals_","type":"uint8"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

// CTokenABI covers the CErc20Delegator surface used by the scenario.
const CTokenABI = `[
	{"type":"constructor","inputs":[
		{"name":"underlying_","type":"address"},
		{"name":"comptroller_","type":"address"},
		{"name":"interestRateModel_","type":"address"},
		{"name":"initialExchangeRateMantissa_","type":"uint256"},
		{"name":"name_","type":"string"},
		{"name":"symbol_","type":"string"},
		{"name":"decimals_","type":"uint8"},
		{"name":"admin_","type":"address"},
		{"name":"implementation_","type":"address"},
		{"name":"becomeImplementationData","type":"bytes"}
	],"stateMutability":"nonpayable"},
	{"type":"function","name":"name","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"admin","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"underlying","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"comptroller","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"implementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"interestRateModel","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"isCToken","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getCash","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"exchangeRateStored","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"mint","inputs":[{"name":"mintAmount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"redeem","inputs":[{"name":"redeemTokens","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"}
]`

// DelegateABI is the CErc20Delegate implementation contract.
const DelegateABI = `[
	{"type":"constructor","inputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"_becomeImplementation","inputs":[{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"}
]`

// ComptrollerABI is the subset of the Unitroller/Comptroller used to list a market.
const ComptrollerABI = `[
	{"type":"function","name":"admin","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"isComptroller","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getAllMarkets","inputs":[],"outputs":[{"name":"","type":"address[]"}],"stateMutability":"view"},
	{"type":"function","name":"markets","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"isListed","type":"bool"},{"name":"collateralFactorMantissa","type":"uint256"},{"name":"isComped","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"_supportMarket","inputs":[{"name":"cToken","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable"}
]`

// InterestRateModelABI identifies an interest rate model contract.
const InterestRateModelABI = `[
	{"type":"function","name":"isInterestRateModel","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

var (
	tokenABI       = mustParseABI(TokenABI)
	cTokenABI      = mustParseABI(CTokenABI)
	delegateABI    = mustParseABI(DelegateABI)
	comptrollerABI = mustParseABI(ComptrollerABI)
	irmABI         = mustParseABI(InterestRateModelABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: invalid abi: " + err.Error())
	}
	return parsed
}

// ParsedTokenABI returns the parsed token ABI.
func ParsedTokenABI() abi.ABI { return tokenABI }

// ParsedCTokenABI returns the parsed market ABI.
func ParsedCTokenABI() abi.ABI { return cTokenABI }

// ParsedDelegateABI returns the parsed delegate ABI.
func ParsedDelegateABI() abi.ABI { return delegateABI }

// ParsedComptrollerABI returns the parsed comptroller ABI.
func ParsedComptrollerABI() abi.ABI { return comptrollerABI }

// ParsedInterestRateModelABI returns the parsed interest rate model ABI.
func ParsedInterestRateModelABI() abi.ABI { return irmABI }
