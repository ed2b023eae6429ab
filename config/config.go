package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"remitlend/core"
	"remitlend/crypto"
	nativecommon "remitlend/native/common"
)

// Config is the node configuration read by remitlendd.
type Config struct {
	DataDir           string   `toml:"DataDir"`
	Environment       string   `toml:"Environment"`
	AdminKeystorePath string   `toml:"AdminKeystorePath"`
	Admin             string   `toml:"Admin"`
	Operators         []string `toml:"Operators"`
	GatewayConfig     string   `toml:"GatewayConfig"`
	IndexerDSN        string   `toml:"IndexerDSN"`

	Asset       Asset        `toml:"asset"`
	Allocations []Allocation `toml:"allocations"`
	Pauses      Pauses       `toml:"pauses"`
	Log         Log          `toml:"log"`
	Telemetry   Telemetry    `toml:"telemetry"`
	Exports     Exports      `toml:"exports"`
}

// Asset describes the fungible asset minted at genesis.
type Asset struct {
	Symbol            string `toml:"Symbol"`
	Decimals          uint8  `toml:"Decimals"`
	MaxUtilizationBps uint64 `toml:"MaxUtilizationBps"`
}

// Allocation seeds a genesis balance. Amount is a decimal string in base
// units.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Pauses are applied by the admin identity on every start.
type Pauses struct {
	Pool   bool `toml:"Pool"`
	Loans  bool `toml:"Loans"`
	Oracle bool `toml:"Oracle"`
}

// Log controls the process logger.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Exports schedules parquet exports inside the node. An empty Schedule
// disables them.
type Exports struct {
	Schedule string `toml:"Schedule"`
	Dir      string `toml:"Dir"`
}

// Load loads the configuration from path. A missing file is created with
// defaults and a fresh admin keystore next to it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
	}
	cfg.applyDefaults(path)
	if err := cfg.resolveAdmin(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./remitlend-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Asset.Symbol) == "" {
		c.Asset.Symbol = core.DefaultGenesis().AssetSymbol
		if c.Asset.Decimals == 0 {
			c.Asset.Decimals = core.DefaultGenesis().AssetDecimals
		}
	}
	if c.Asset.MaxUtilizationBps == 0 {
		c.Asset.MaxUtilizationBps = core.DefaultGenesis().MaxUtilizationBps
	}
	if c.Operators == nil {
		c.Operators = []string{}
	}
	if strings.TrimSpace(c.Exports.Dir) == "" {
		c.Exports.Dir = filepath.Join(c.DataDir, "exports")
	}
	base := filepath.Dir(path)
	if c.AdminKeystorePath != "" && !filepath.IsAbs(c.AdminKeystorePath) {
		c.AdminKeystorePath = filepath.Join(base, c.AdminKeystorePath)
	}
	if c.GatewayConfig != "" && !filepath.IsAbs(c.GatewayConfig) {
		c.GatewayConfig = filepath.Join(base, c.GatewayConfig)
	}
}

// resolveAdmin fills Admin from the keystore when only the keystore is set.
func (c *Config) resolveAdmin() error {
	if strings.TrimSpace(c.Admin) != "" || c.AdminKeystorePath == "" {
		return nil
	}
	addr, err := crypto.KeystoreAddress(c.AdminKeystorePath)
	if err != nil {
		return fmt.Errorf("resolve admin: %w", err)
	}
	c.Admin = addr.String()
	return nil
}

// AdminAddress returns the parsed admin address.
func (c *Config) AdminAddress() (crypto.Address, error) {
	return crypto.ParseAddress(c.Admin)
}

// Genesis converts the configuration into the protocol genesis payload.
func (c *Config) Genesis() (core.Genesis, error) {
	g := core.Genesis{
		AssetSymbol:       c.Asset.Symbol,
		AssetDecimals:     c.Asset.Decimals,
		MaxUtilizationBps: c.Asset.MaxUtilizationBps,
	}
	for i, raw := range c.Operators {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("operators[%d]: %w", i, err)
		}
		g.Operators = append(g.Operators, addr)
	}
	for i, alloc := range c.Allocations {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("allocations[%d].Address: %w", i, err)
		}
		amount, err := nativecommon.ParseAmount(alloc.Amount)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("allocations[%d].Amount: %w", i, err)
		}
		g.Allocations = append(g.Allocations, core.Allocation{Address: addr, Amount: amount})
	}
	return g, g.Validate()
}

// PausedModules lists the modules the admin pauses at start.
func (c *Config) PausedModules() map[string]bool {
	return map[string]bool{
		"pool":   c.Pauses.Pool,
		"loans":  c.Pauses.Loans,
		"oracle": c.Pauses.Oracle,
	}
}

// createDefault writes a default configuration with a freshly generated
// admin key. The keystore has an empty passphrase; operators are expected to
// rotate it with remitctl before going beyond a local setup.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := filepath.Join(filepath.Dir(path), "admin.keystore")
	admin, err := crypto.SaveToKeystore(keystorePath, key, "")
	if err != nil {
		return nil, err
	}
	genesis := core.DefaultGenesis()
	cfg := &Config{
		DataDir:           "./remitlend-data",
		Environment:       "local",
		AdminKeystorePath: filepath.Base(keystorePath),
		Admin:             admin.String(),
		Operators:         []string{},
		GatewayConfig:     "",
		IndexerDSN:        "file:remitlend-index.db",
		Asset: Asset{
			Symbol:            genesis.AssetSymbol,
			Decimals:          genesis.AssetDecimals,
			MaxUtilizationBps: genesis.MaxUtilizationBps,
		},
		Log: Log{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.AdminKeystorePath = keystorePath
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
