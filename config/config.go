package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"
)

// TokenConfig declares one flash-lendable token.
type TokenConfig struct {
	Address          string `json:"address" yaml:"address"`
	Symbol           string `json:"symbol" yaml:"symbol"`
	Decimals         uint8  `json:"decimals" yaml:"decimals"`
	FeeBps           uint16 `json:"fee_bps" yaml:"fee_bps"` // In basis points (1 = 0.01%)
	InitialLiquidity string `json:"initial_liquidity" yaml:"initial_liquidity"`
}

// TokenAddress parses the configured token address.
func (t TokenConfig) TokenAddress() common.Address {
	return common.HexToAddress(t.Address)
}

// Liquidity parses the bootstrap liquidity in smallest units.
func (t TokenConfig) Liquidity() (*big.Int, error) {
	if t.InitialLiquidity == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(t.InitialLiquidity, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid initial_liquidity for %s: %q", t.Symbol, t.InitialLiquidity)
	}
	return v, nil
}

// DemoConfig drives the demo subcommand.
type DemoConfig struct {
	Loans         int     `json:"loans" yaml:"loans"`
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// Config is the full pool service configuration.
type Config struct {
	PoolAddress     string        `json:"pool_address" yaml:"pool_address"`
	BorrowerAddress string        `json:"borrower_address" yaml:"borrower_address"`
	Tokens          []TokenConfig `json:"tokens" yaml:"tokens"`
	Demo            DemoConfig    `json:"demo" yaml:"demo"`

	// Internal components
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a working single-token setup: 100 units of an
// 18-decimal token lendable at 9 bps.
func DefaultConfig() *Config {
	return &Config{
		PoolAddress:     "0x0000000000000000000000000000000000000F00",
		BorrowerAddress: "0x0000000000000000000000000000000000000B01",
		Tokens: []TokenConfig{
			{
				Address:          "0x0000000000000000000000000000000000000A01",
				Symbol:           "FRAX",
				Decimals:         18,
				FeeBps:           9,
				InitialLiquidity: "100000000000000000000",
			},
		},
		Demo: DemoConfig{
			Loans:         3,
			RatePerSecond: 2,
			Burst:         1,
		},
	}
}

// LoadConfig reads configuration from path. An empty path falls back to
// the TWISTER_CONFIG environment variable, then to defaults. JSON and
// YAML files are both accepted.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return DefaultConfig(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.PoolAddress) {
		return fmt.Errorf("invalid pool_address: %q", c.PoolAddress)
	}
	if !common.IsHexAddress(c.BorrowerAddress) {
		return fmt.Errorf("invalid borrower_address: %q", c.BorrowerAddress)
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one lendable token is required")
	}
	seen := make(map[common.Address]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("invalid token address for %s: %q", t.Symbol, t.Address)
		}
		addr := t.TokenAddress()
		if addr == (common.Address{}) {
			return fmt.Errorf("token %s: zero address is not lendable", t.Symbol)
		}
		if seen[addr] {
			return fmt.Errorf("duplicate token address %s", t.Address)
		}
		seen[addr] = true
		if _, err := t.Liquidity(); err != nil {
			return err
		}
	}
	if c.Demo.Loans < 0 {
		return fmt.Errorf("demo.loans cannot be negative")
	}
	return nil
}
