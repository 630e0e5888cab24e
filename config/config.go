package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	BackendRPC = "rpc"
	BackendSim = "sim"

	DialectHardhat = "hardhat"
	DialectAnvil   = "anvil"

	// DefaultComptroller is the Compound v2 Unitroller on Ethereum mainnet.
	DefaultComptroller = "0x3d9819210A31b4961b30EF54bE2aeD79B9c9Cd3B"

	EnvRPCURL  = "FIRSTDEPOSIT_RPC_URL"
	EnvBackend = "FIRSTDEPOSIT_BACKEND"
)

// Config is the run configuration of the first-deposit harness.
type Config struct {
	Chain     ChainConfig     `toml:"Chain"`
	Market    MarketConfig    `toml:"Market"`
	Attack    AttackConfig    `toml:"Attack"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
	Report    ReportConfig    `toml:"Report"`
	Log       LogConfig       `toml:"Log"`
}

// ChainConfig selects and tunes the chain backend.
type ChainConfig struct {
	Backend               string  `toml:"Backend"`
	RPCURL                string  `toml:"RPCURL"`
	Dialect               string  `toml:"Dialect"`
	ReceiptTimeoutSeconds int     `toml:"ReceiptTimeoutSeconds"`
	PollIntervalMillis    int     `toml:"PollIntervalMillis"`
	RequestsPerSecond     float64 `toml:"RequestsPerSecond"`
	Gas                   uint64  `toml:"Gas"`
	// AdminGasWei tops up the impersonated admin before it sends. Zero skips it.
	AdminGasWei string `toml:"AdminGasWei"`
	SimAccounts int    `toml:"SimAccounts"`
}

// MarketConfig describes the market that gets deployed and listed.
type MarketConfig struct {
	Comptroller         string `toml:"Comptroller"`
	ArtifactsDir        string `toml:"ArtifactsDir"`
	Name                string `toml:"Name"`
	Symbol              string `toml:"Symbol"`
	UnderlyingDecimals  uint8  `toml:"UnderlyingDecimals"`
	CTokenDecimals      uint8  `toml:"CTokenDecimals"`
	InitialExchangeRate string `toml:"InitialExchangeRate"`
}

// AttackConfig holds the scenario amounts. Underlying amounts are in token
// units, SeedAmount in units of the market's decimals and SeedShares in base
// share units.
type AttackConfig struct {
	Rounds          int    `toml:"Rounds"`
	VictimFunding   string `toml:"VictimFunding"`
	AttackerFunding string `toml:"AttackerFunding"`
	SeedAmount      string `toml:"SeedAmount"`
	SeedShares      string `toml:"SeedShares"`
	Donation        string `toml:"Donation"`
	VictimDeposit   string `toml:"VictimDeposit"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string `toml:"OTLPEndpoint"`
	OTLPInsecure   bool   `toml:"OTLPInsecure"`
	OTLPHeaders    string `toml:"OTLPHeaders"`
	Traces         bool   `toml:"Traces"`
	Metrics        bool   `toml:"Metrics"`
	PushgatewayURL string `toml:"PushgatewayURL"`
	PushJob        string `toml:"PushJob"`
}

// ReportConfig names the report file. An empty Format is inferred from the
// file extension.
type ReportConfig struct {
	Path   string `toml:"Path"`
	Format string `toml:"Format"`
}

// LogConfig adds a rotating file sink next to stdout when File is set.
type LogConfig struct {
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Default returns the configuration of the reference demonstration: two
// rounds against a Hardhat mainnet fork.
func Default() Config {
	return Config{
		Chain: ChainConfig{
			Backend:               BackendRPC,
			RPCURL:                "http://127.0.0.1:8545",
			Dialect:               DialectHardhat,
			ReceiptTimeoutSeconds: 30,
			PollIntervalMillis:    250,
			AdminGasWei:           "0",
			SimAccounts:           20,
		},
		Market: MarketConfig{
			Comptroller:         DefaultComptroller,
			ArtifactsDir:        "artifacts",
			Name:                "New CToken",
			Symbol:              "NCT",
			UnderlyingDecimals:  18,
			CTokenDecimals:      8,
			InitialExchangeRate: "2",
		},
		Attack: AttackConfig{
			Rounds:          2,
			VictimFunding:   "1000000",
			AttackerFunding: "2000000",
			SeedAmount:      "2",
			SeedShares:      "1",
			Donation:        "1000000",
			VictimDeposit:   "1000000",
		},
		Telemetry: TelemetryConfig{
			PushJob: "firstdeposit",
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load decodes the TOML file at path over the defaults, applies environment
// overrides and validates the result. An empty path yields the defaults.
// Keys match struct fields case-insensitively; keys with no matching field are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config %s: unknown key %s", path, undecoded[0].String())
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRPCURL); ok && strings.TrimSpace(v) != "" {
		cfg.Chain.RPCURL = v
	}
	if v, ok := lookup(EnvBackend); ok && strings.TrimSpace(v) != "" {
		cfg.Chain.Backend = v
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.Chain.normalize()
	cfg.Market.normalize()
	cfg.Attack.normalize()
	cfg.Telemetry.OTLPEndpoint = strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.PushgatewayURL = strings.TrimSpace(cfg.Telemetry.PushgatewayURL)
	if strings.TrimSpace(cfg.Telemetry.PushJob) == "" {
		cfg.Telemetry.PushJob = "firstdeposit"
	}
	cfg.Report.normalize()
	cfg.Log.Env = strings.TrimSpace(cfg.Log.Env)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.Chain.validate(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if err := cfg.Market.validate(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if err := cfg.Attack.validate(); err != nil {
		return fmt.Errorf("attack: %w", err)
	}
	if err := cfg.Report.validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	return nil
}

func (cfg *ChainConfig) normalize() {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendRPC
	}
	cfg.RPCURL = strings.TrimSpace(cfg.RPCURL)
	cfg.Dialect = strings.ToLower(strings.TrimSpace(cfg.Dialect))
	if cfg.Dialect == "" {
		cfg.Dialect = DialectHardhat
	}
	if cfg.ReceiptTimeoutSeconds == 0 {
		cfg.ReceiptTimeoutSeconds = 30
	}
	if cfg.PollIntervalMillis == 0 {
		cfg.PollIntervalMillis = 250
	}
	cfg.AdminGasWei = strings.TrimSpace(cfg.AdminGasWei)
	if cfg.AdminGasWei == "" {
		cfg.AdminGasWei = "0"
	}
}

func (cfg ChainConfig) validate() error {
	switch cfg.Backend {
	case BackendRPC:
		if cfg.RPCURL == "" {
			return fmt.Errorf("RPCURL is required for the rpc backend")
		}
	case BackendSim:
		if cfg.SimAccounts < 0 {
			return fmt.Errorf("SimAccounts must not be negative")
		}
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Dialect != DialectHardhat && cfg.Dialect != DialectAnvil {
		return fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}
	if cfg.ReceiptTimeoutSeconds < 0 {
		return fmt.Errorf("ReceiptTimeoutSeconds must not be negative")
	}
	if cfg.PollIntervalMillis < 0 {
		return fmt.Errorf("PollIntervalMillis must not be negative")
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("RequestsPerSecond must not be negative")
	}
	if _, err := cfg.AdminGas(); err != nil {
		return err
	}
	return nil
}

// AdminGas parses AdminGasWei.
func (cfg ChainConfig) AdminGas() (*big.Int, error) {
	wei, ok := new(big.Int).SetString(cfg.AdminGasWei, 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("AdminGasWei %q is not a non-negative integer", cfg.AdminGasWei)
	}
	return wei, nil
}

func (cfg *MarketConfig) normalize() {
	cfg.Comptroller = strings.TrimSpace(cfg.Comptroller)
	if cfg.Comptroller == "" {
		cfg.Comptroller = DefaultComptroller
	}
	cfg.ArtifactsDir = strings.TrimSpace(cfg.ArtifactsDir)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Symbol = strings.TrimSpace(cfg.Symbol)
	cfg.InitialExchangeRate = strings.TrimSpace(cfg.InitialExchangeRate)
}

func (cfg MarketConfig) validate() error {
	if !common.IsHexAddress(cfg.Comptroller) {
		return fmt.Errorf("Comptroller %q is not an address", cfg.Comptroller)
	}
	if cfg.Name == "" || cfg.Symbol == "" {
		return fmt.Errorf("Name and Symbol are required")
	}
	if cfg.UnderlyingDecimals == 0 || cfg.CTokenDecimals == 0 {
		return fmt.Errorf("UnderlyingDecimals and CTokenDecimals must be positive")
	}
	rate, err := decimal.NewFromString(cfg.InitialExchangeRate)
	if err != nil {
		return fmt.Errorf("InitialExchangeRate: %w", err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("InitialExchangeRate must be positive")
	}
	return nil
}

// ComptrollerAddress returns the configured Unitroller address.
func (cfg MarketConfig) ComptrollerAddress() common.Address {
	return common.HexToAddress(cfg.Comptroller)
}

func (cfg *AttackConfig) normalize() {
	cfg.VictimFunding = strings.TrimSpace(cfg.VictimFunding)
	cfg.AttackerFunding = strings.TrimSpace(cfg.AttackerFunding)
	cfg.SeedAmount = strings.TrimSpace(cfg.SeedAmount)
	cfg.SeedShares = strings.TrimSpace(cfg.SeedShares)
	cfg.Donation = strings.TrimSpace(cfg.Donation)
	cfg.VictimDeposit = strings.TrimSpace(cfg.VictimDeposit)
}

func (cfg AttackConfig) validate() error {
	if cfg.Rounds < 1 {
		return fmt.Errorf("Rounds must be at least 1")
	}
	amounts := []struct{ name, value string }{
		{"VictimFunding", cfg.VictimFunding},
		{"AttackerFunding", cfg.AttackerFunding},
		{"SeedAmount", cfg.SeedAmount},
		{"SeedShares", cfg.SeedShares},
		{"Donation", cfg.Donation},
		{"VictimDeposit", cfg.VictimDeposit},
	}
	for _, field := range amounts {
		name, value := field.name, field.value
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (cfg *ReportConfig) normalize() {
	cfg.Path = strings.TrimSpace(cfg.Path)
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "yml" {
		cfg.Format = "yaml"
	}
}

func (cfg ReportConfig) validate() error {
	if cfg.Format != "" && cfg.Format != "json" && cfg.Format != "yaml" {
		return fmt.Errorf("unknown format %q", cfg.Format)
	}
	return nil
}
