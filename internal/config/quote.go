package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for `hotswap quote`.
type QuoteConfig struct {
	NFTReserve uint64
	FFTReserve string
	Amount     uint64
	Direction  string
	Model      string
	FeeBps     uint32
	Decimals   uint8
	LogLevel   string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"direction": "buy",
		"model":     "",
		"fee-bps":   uint32(30),
		"decimals":  uint8(18),
		"amount":    uint64(1),
		"log-level": "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		NFTReserve: v.GetUint64("nft-reserve"),
		FFTReserve: v.GetString("fft-reserve"),
		Amount:     v.GetUint64("amount"),
		Direction:  v.GetString("direction"),
		Model:      v.GetString("model"),
		FeeBps:     v.GetUint32("fee-bps"),
		Decimals:   uint8(v.GetUint("decimals")),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// TokenConfig holds configuration for `hotswap token`.
type TokenConfig struct {
	RPCURL   string
	Tokens   []string
	LogLevel string
}

// LoadToken merges config file, environment variables, and flags into TokenConfig.
func LoadToken(cfgFile string, flags *pflag.FlagSet) (TokenConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level": "info",
	})
	if err != nil {
		return TokenConfig{}, err
	}

	return TokenConfig{
		RPCURL:   v.GetString("rpc"),
		Tokens:   getStringSlice(v, "token"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
