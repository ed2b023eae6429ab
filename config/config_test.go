package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"remitlend/crypto"
)

var (
	testAdmin    = crypto.BytesToAddress([]byte{0x42, 0x24})
	testOperator = crypto.BytesToAddress([]byte{0x07})
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesNodeSettings(t *testing.T) {
	path := writeConfig(t, `DataDir = "./data"
Environment = "staging"
Admin = "`+testAdmin.String()+`"
Operators = ["`+testOperator.String()+`"]
GatewayConfig = "gateway.yaml"
IndexerDSN = "postgres://indexer@localhost/remitlend"

[asset]
Symbol = "USDT"
Decimals = 6
MaxUtilizationBps = 8000

[[allocations]]
Address = "`+testOperator.Hex()+`"
Amount = "1000000"

[pauses]
Loans = true

[log]
Level = "debug"
File = "/var/log/remitlend.log"
MaxSizeMB = 50

[telemetry]
Endpoint = "otel:4318"
Insecure = true
Traces = true
Headers = "x-api-key=secret"

[exports]
Schedule = "@every 6h"
Dir = "/srv/exports"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.DataDir != "./data" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if cfg.GatewayConfig != filepath.Join(filepath.Dir(path), "gateway.yaml") {
		t.Fatalf("gateway config not resolved against config dir: %s", cfg.GatewayConfig)
	}
	if !cfg.PausedModules()["loans"] || cfg.PausedModules()["pool"] {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 50 {
		t.Fatalf("unexpected log settings: %+v", cfg.Log)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if cfg.Exports.Schedule != "@every 6h" || cfg.Exports.Dir != "/srv/exports" {
		t.Fatalf("unexpected exports: %+v", cfg.Exports)
	}

	admin, err := cfg.AdminAddress()
	if err != nil || admin != testAdmin {
		t.Fatalf("admin %s (%v), want %s", admin, err, testAdmin)
	}
	g, err := cfg.Genesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if g.AssetSymbol != "USDT" || g.MaxUtilizationBps != 8000 {
		t.Fatalf("unexpected genesis asset: %+v", g)
	}
	if len(g.Operators) != 1 || g.Operators[0] != testOperator {
		t.Fatalf("unexpected operators: %v", g.Operators)
	}
	if len(g.Allocations) != 1 || g.Allocations[0].Amount.Uint64() != 1_000_000 {
		t.Fatalf("unexpected allocations: %+v", g.Allocations)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `Admin = "`+testAdmin.String()+`"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Asset.Symbol != "USDC" || cfg.Asset.Decimals != 6 || cfg.Asset.MaxUtilizationBps != 9000 {
		t.Fatalf("unexpected asset defaults: %+v", cfg.Asset)
	}
	if cfg.DataDir == "" || cfg.Environment != "local" {
		t.Fatalf("unexpected node defaults: %+v", cfg)
	}
	if cfg.Exports.Schedule != "" || cfg.Exports.Dir != filepath.Join(cfg.DataDir, "exports") {
		t.Fatalf("unexpected export defaults: %+v", cfg.Exports)
	}
}

func TestLoadCreatesDefaultWithAdminKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(cfg.AdminKeystorePath); err != nil {
		t.Fatalf("keystore not written: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Admin != cfg.Admin {
		t.Fatalf("admin changed across reload: %s vs %s", reloaded.Admin, cfg.Admin)
	}
	if reloaded.AdminKeystorePath != cfg.AdminKeystorePath {
		t.Fatalf("keystore path changed across reload: %s vs %s", reloaded.AdminKeystorePath, cfg.AdminKeystorePath)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown key":       `Admin = "` + testAdmin.String() + `"` + "\nListenAddress = \":6001\"",
		"missing admin":     `DataDir = "./data"`,
		"bad operator":      `Admin = "` + testAdmin.String() + `"` + "\nOperators = [\"nope\"]",
		"duplicate":         `Admin = "` + testAdmin.String() + `"` + "\nOperators = [\"" + testOperator.String() + "\", \"" + testOperator.Hex() + "\"]",
		"utilization":       `Admin = "` + testAdmin.String() + `"` + "\n[asset]\nMaxUtilizationBps = 10001",
		"allocation amount": `Admin = "` + testAdmin.String() + `"` + "\n[[allocations]]\nAddress = \"" + testOperator.String() + "\"\nAmount = \"-5\"",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %s to fail", strings.TrimSpace(name))
			}
		})
	}
}
