package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return bytes32 for symbol and name.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIOnce    sync.Once
	erc20ABIString  abi.ABI
	erc20ABIBytes32 abi.ABI
	erc20ABIErr     error
)

func erc20ABIs() (abi.ABI, abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABIString, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
		if erc20ABIErr != nil {
			return
		}
		erc20ABIBytes32, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIString, erc20ABIBytes32, erc20ABIErr
}

// ContractCaller performs read-only contract calls. *Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMeta is ERC20 metadata. Symbol and Name are best effort.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol,omitempty"`
	Name     string         `json:"name,omitempty"`
}

// TokenMetadata resolves ERC20 metadata over RPC and caches it by address.
type TokenMetadata struct {
	caller ContractCaller
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]TokenMeta
}

func NewTokenMetadata(caller ContractCaller, logger *zap.Logger) *TokenMetadata {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMetadata{caller: caller, logger: logger, cache: make(map[common.Address]TokenMeta)}
}

// Decimals returns the token's decimals.
func (m *TokenMetadata) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	meta, err := m.Fetch(ctx, token)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// Fetch loads token metadata, from cache when already resolved.
func (m *TokenMetadata) Fetch(ctx context.Context, token common.Address) (TokenMeta, error) {
	m.mu.RLock()
	meta, ok := m.cache[token]
	m.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := m.fetch(ctx, token)
	if err != nil {
		return meta, err
	}
	m.mu.Lock()
	m.cache[token] = meta
	m.mu.Unlock()
	return meta, nil
}

func (m *TokenMetadata) fetch(ctx context.Context, token common.Address) (TokenMeta, error) {
	meta := TokenMeta{Address: token}
	if m.caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	stringABI, bytes32ABI, err := erc20ABIs()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%s: empty result", method)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	text := func(method string) string {
		if values, err := call(method, stringABI); err == nil {
			if s, ok := values[0].(string); ok {
				return s
			}
		}
		values, err := call(method, bytes32ABI)
		if err != nil {
			m.logger.Debug("token text call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
			return ""
		}
		if b, ok := values[0].([32]byte); ok {
			return string(bytes.TrimRight(b[:], "\x00"))
		}
		return ""
	}
	meta.Symbol = text("symbol")
	meta.Name = text("name")
	return meta, nil
}
