package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// NativeToken names the chain's native currency in account balances. It is
// always present with 18 decimals and pays deployment fees.
const NativeToken = "native"

// Token declares an asset minted on the in-memory ledger.
type Token struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	Decimals uint8  `mapstructure:"decimals"`
}

// Account is a named holder. Balances map token names to human readable
// amounts, or NFT counts for collections.
type Account struct {
	Name     string            `mapstructure:"name"`
	Balances map[string]string `mapstructure:"balances"`
}

// Step is one scenario operation.
type Step struct {
	Op          string `mapstructure:"op"`
	Caller      string `mapstructure:"caller"`
	Pair        string `mapstructure:"pair"`
	NFT         string `mapstructure:"nft"`
	FFT         string `mapstructure:"fft"`
	Amount      string `mapstructure:"amount"`
	Limit       string `mapstructure:"limit"`
	SlippageBps uint32 `mapstructure:"slippage-bps"`
	Kind        string `mapstructure:"kind"`
	Index       uint64 `mapstructure:"index"`
	To          string `mapstructure:"to"`
	ExpectError string `mapstructure:"expect-error"`
}

// SimulateConfig drives `hotswap simulate`.
type SimulateConfig struct {
	LogLevel    string
	Out         string
	PGDSN       string
	ChainID     uint64
	Admin       string
	FeeBps      uint32
	DeployFee   string
	BuyModel    string
	SellModel   string
	MetricsAddr string
	Snapshot    string
	Tokens      []Token
	Accounts    []Account
	Steps       []Step
}

// Load merges config file, environment variables and flags into SimulateConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level":  "info",
		"out":        "./data/hotswap_logs.jsonl",
		"chain-id":   uint64(31337),
		"admin":      "admin",
		"fee-bps":    uint32(30),
		"deploy-fee": "0.001",
		"buy-model":  "spot",
		"sell-model": "impact",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		LogLevel:    v.GetString("log-level"),
		Out:         v.GetString("out"),
		PGDSN:       v.GetString("pg-dsn"),
		ChainID:     v.GetUint64("chain-id"),
		Admin:       v.GetString("admin"),
		FeeBps:      v.GetUint32("fee-bps"),
		DeployFee:   v.GetString("deploy-fee"),
		BuyModel:    v.GetString("buy-model"),
		SellModel:   v.GetString("sell-model"),
		MetricsAddr: v.GetString("metrics-addr"),
		Snapshot:    v.GetString("snapshot"),
	}
	if err := v.UnmarshalKey("tokens", &cfg.Tokens); err != nil {
		return SimulateConfig{}, fmt.Errorf("decode tokens: %w", err)
	}
	if err := v.UnmarshalKey("accounts", &cfg.Accounts); err != nil {
		return SimulateConfig{}, fmt.Errorf("decode accounts: %w", err)
	}
	if err := v.UnmarshalKey("steps", &cfg.Steps); err != nil {
		return SimulateConfig{}, fmt.Errorf("decode steps: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return SimulateConfig{}, err
	}
	return cfg, nil
}

// normalize lowercases token references. Viper folds map keys to lower
// case, so names are matched case-insensitively everywhere.
func (c *SimulateConfig) normalize() {
	for i := range c.Tokens {
		c.Tokens[i].Name = strings.ToLower(c.Tokens[i].Name)
	}
	for i := range c.Steps {
		c.Steps[i].NFT = strings.ToLower(c.Steps[i].NFT)
		c.Steps[i].FFT = strings.ToLower(c.Steps[i].FFT)
	}
}

// Validate checks the scenario shape. Semantic errors surface when it runs.
func (c SimulateConfig) Validate() error {
	if c.FeeBps > 10_000 {
		return fmt.Errorf("fee-bps must be at most 10000, got %d", c.FeeBps)
	}
	names := make(map[string]struct{}, len(c.Tokens))
	for i, tok := range c.Tokens {
		if tok.Name == "" {
			return fmt.Errorf("token %d: name is required", i)
		}
		if tok.Name == NativeToken {
			return fmt.Errorf("token name %s is reserved", NativeToken)
		}
		switch strings.ToLower(tok.Kind) {
		case "nft", "fft":
		default:
			return fmt.Errorf("token %s: kind must be nft or fft", tok.Name)
		}
		if _, dup := names[tok.Name]; dup {
			return fmt.Errorf("token %s declared twice", tok.Name)
		}
		names[tok.Name] = struct{}{}
	}
	for i, acct := range c.Accounts {
		if acct.Name == "" {
			return fmt.Errorf("account %d: name is required", i)
		}
		for token := range acct.Balances {
			if _, ok := names[token]; !ok && token != NativeToken {
				return fmt.Errorf("account %s: unknown token %s", acct.Name, token)
			}
		}
	}
	for i, step := range c.Steps {
		if step.Op == "" {
			return fmt.Errorf("step %d: op is required", i)
		}
	}
	return nil
}
