package scenario

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"firstdeposit/config"
	"firstdeposit/contracts"
)

// Params are the scenario inputs resolved to base units.
type Params struct {
	Comptroller        common.Address
	MarketName         string
	MarketSymbol       string
	UnderlyingDecimals uint8
	CTokenDecimals     uint8
	// InitialExchangeRate is the mantissa scaled by both decimals.
	InitialExchangeRate *big.Int
	Rounds              int
	VictimFunding       *big.Int
	AttackerFunding     *big.Int
	SeedAmount          *big.Int
	SeedShares          *big.Int
	Donation            *big.Int
	VictimDeposit       *big.Int
	// AdminGas is sent to the impersonated admin before listing when positive.
	AdminGas *big.Int
}

// ParamsFromConfig converts the configured token-unit amounts.
func ParamsFromConfig(cfg config.Config) (Params, error) {
	market, attack := cfg.Market, cfg.Attack
	p := Params{
		Comptroller:        market.ComptrollerAddress(),
		MarketName:         market.Name,
		MarketSymbol:       market.Symbol,
		UnderlyingDecimals: market.UnderlyingDecimals,
		CTokenDecimals:     market.CTokenDecimals,
		Rounds:             attack.Rounds,
	}
	if int(market.UnderlyingDecimals)+int(market.CTokenDecimals) > 255 {
		return Params{}, fmt.Errorf("scenario: combined decimals overflow")
	}
	totalDecimals := market.UnderlyingDecimals + market.CTokenDecimals

	var err error
	parse := func(name, value string, decimals uint8) *big.Int {
		if err != nil {
			return nil
		}
		var out *big.Int
		out, err = contracts.ParseUnits(value, decimals)
		if err != nil {
			err = fmt.Errorf("scenario: %s: %w", name, err)
		}
		return out
	}
	p.InitialExchangeRate = parse("InitialExchangeRate", market.InitialExchangeRate, totalDecimals)
	p.VictimFunding = parse("VictimFunding", attack.VictimFunding, market.UnderlyingDecimals)
	p.AttackerFunding = parse("AttackerFunding", attack.AttackerFunding, market.UnderlyingDecimals)
	p.SeedAmount = parse("SeedAmount", attack.SeedAmount, market.CTokenDecimals)
	p.SeedShares = parse("SeedShares", attack.SeedShares, 0)
	p.Donation = parse("Donation", attack.Donation, market.UnderlyingDecimals)
	p.VictimDeposit = parse("VictimDeposit", attack.VictimDeposit, market.UnderlyingDecimals)
	if err != nil {
		return Params{}, err
	}
	if p.AdminGas, err = cfg.Chain.AdminGas(); err != nil {
		return Params{}, fmt.Errorf("scenario: %w", err)
	}
	return p, nil
}

// DefaultParams are the amounts of the reference demonstration.
func DefaultParams() Params {
	p, err := ParamsFromConfig(config.Default())
	if err != nil {
		panic(err)
	}
	return p
}

func (p Params) validate() error {
	if p.Rounds < 1 {
		return fmt.Errorf("scenario: at least one round required")
	}
	for name, v := range map[string]*big.Int{
		"InitialExchangeRate": p.InitialExchangeRate,
		"VictimFunding":       p.VictimFunding,
		"AttackerFunding":     p.AttackerFunding,
		"SeedAmount":          p.SeedAmount,
		"SeedShares":          p.SeedShares,
		"Donation":            p.Donation,
		"VictimDeposit":       p.VictimDeposit,
	} {
		if v == nil || v.Sign() <= 0 {
			return fmt.Errorf("scenario: %s must be positive", name)
		}
	}
	if p.VictimDeposit.Cmp(p.VictimFunding) > 0 {
		return fmt.Errorf("scenario: VictimDeposit exceeds VictimFunding")
	}
	return nil
}
