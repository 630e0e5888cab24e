package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firstdeposit.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutPath(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvBackend, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Chain.Backend != BackendRPC || cfg.Chain.Dialect != DialectHardhat {
		t.Fatalf("unexpected chain defaults: %+v", cfg.Chain)
	}
	if cfg.Attack.Rounds != 2 || cfg.Attack.SeedShares != "1" {
		t.Fatalf("unexpected attack defaults: %+v", cfg.Attack)
	}
	if got := cfg.Market.ComptrollerAddress().Hex(); got != DefaultComptroller {
		t.Fatalf("comptroller = %s, want %s", got, DefaultComptroller)
	}
}

func TestLoadParsesSections(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvBackend, "")
	path := writeConfig(t, `
[Chain]
Backend = "RPC"
RPCURL = " http://localhost:9545 "
Dialect = "Anvil"
ReceiptTimeoutSeconds = 5
RequestsPerSecond = 12.5
AdminGasWei = "1000000000000000000"

[Market]
ArtifactsDir = "build/artifacts"

[Attack]
Rounds = 3
Donation = "500000"

[Telemetry]
OTLPEndpoint = "collector:4318"
Traces = true
PushgatewayURL = "http://pushgateway:9091"

[Report]
Path = "out/report.yml"
Format = "YML"

[Log]
File = "logs/run.log"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.Backend != BackendRPC || cfg.Chain.RPCURL != "http://localhost:9545" {
		t.Fatalf("unexpected chain: %+v", cfg.Chain)
	}
	if cfg.Chain.Dialect != DialectAnvil {
		t.Fatalf("dialect = %q", cfg.Chain.Dialect)
	}
	if cfg.Chain.PollIntervalMillis != 250 {
		t.Fatalf("poll interval default lost: %d", cfg.Chain.PollIntervalMillis)
	}
	gas, err := cfg.Chain.AdminGas()
	if err != nil {
		t.Fatalf("admin gas: %v", err)
	}
	if gas.Cmp(big.NewInt(1_000_000_000_000_000_000)) != 0 {
		t.Fatalf("admin gas = %s", gas)
	}
	if cfg.Attack.Rounds != 3 || cfg.Attack.Donation != "500000" || cfg.Attack.VictimDeposit != "1000000" {
		t.Fatalf("unexpected attack: %+v", cfg.Attack)
	}
	if cfg.Report.Format != "yaml" {
		t.Fatalf("format = %q, want yaml", cfg.Report.Format)
	}
	if cfg.Log.File != "logs/run.log" || cfg.Log.MaxBackups != 3 {
		t.Fatalf("unexpected log: %+v", cfg.Log)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[Chain]
RpcEndpoint = "http://localhost:8545"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key Chain.RpcEndpoint") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadMatchesKeysCaseInsensitively(t *testing.T) {
	path := writeConfig(t, `
[chain]
RPCUrl = "http://other:8545"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.RPCURL != "http://other:8545" {
		t.Fatalf("RPCURL = %q, want http://other:8545", cfg.Chain.RPCURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvRPCURL, "https://fork.example/v2/key")
	t.Setenv(EnvBackend, "sim")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.Backend != BackendSim {
		t.Fatalf("backend = %q", cfg.Chain.Backend)
	}
	if cfg.Chain.RPCURL != "https://fork.example/v2/key" {
		t.Fatalf("rpc url = %q", cfg.Chain.RPCURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"chain: unknown backend":          func(c *Config) { c.Chain.Backend = "ipc" },
		"chain: unknown dialect":          func(c *Config) { c.Chain.Dialect = "ganache" },
		"chain: RPCURL is required":       func(c *Config) { c.Chain.RPCURL = "" },
		"chain: AdminGasWei":              func(c *Config) { c.Chain.AdminGasWei = "-1" },
		"market: Comptroller":             func(c *Config) { c.Market.Comptroller = "0x1234" },
		"market: InitialExchangeRate":     func(c *Config) { c.Market.InitialExchangeRate = "two" },
		"attack: Rounds must be at least": func(c *Config) { c.Attack.Rounds = 0 },
		"attack: Donation must be":        func(c *Config) { c.Attack.Donation = "0" },
		"attack: SeedAmount":              func(c *Config) { c.Attack.SeedAmount = "abc" },
		"report: unknown format":          func(c *Config) { c.Report.Format = "xml" },
	}
	for want, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		cfg.normalize()
		err := cfg.validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("mutation %q: got %v", want, err)
		}
	}
}

func TestSimBackendDoesNotNeedRPCURL(t *testing.T) {
	cfg := Default()
	cfg.Chain.Backend = BackendSim
	cfg.Chain.RPCURL = ""
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
