package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const hotswapABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "controller", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "liquidity", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "pairId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "nft", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "fft", "type": "address"}
    ],
    "name": "HotswapDeployed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "nftAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fftAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint8", "name": "direction", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "kind", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Deposited",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "kind", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Withdrawn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "kind", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "FeeClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "PriceUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "controller", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "liquidity", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "previousController", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "previousLiquidity", "type": "address"}
    ],
    "name": "Rebound",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "controller", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "factory", "type": "address"}
    ],
    "name": "FactoryChanged",
    "type": "event"
  }
]`

var (
	hotswapABI     abi.ABI
	hotswapABIOnce sync.Once
	hotswapABIErr  error
)

// HotswapABI returns the parsed event ABI of registries, controllers and vaults.
func HotswapABI() (abi.ABI, error) {
	hotswapABIOnce.Do(func() {
		hotswapABI, hotswapABIErr = abi.JSON(strings.NewReader(hotswapABIJSON))
	})
	return hotswapABI, hotswapABIErr
}

// Topic0s returns the event signature hashes, for log filters.
func Topic0s() ([]common.Hash, error) {
	parsed, err := HotswapABI()
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, 0, len(parsed.Events))
	for _, ev := range parsed.Events {
		out = append(out, ev.ID)
	}
	return out, nil
}

// Topic0Of returns the signature hash of the named event, ignoring case.
func Topic0Of(name string) (common.Hash, bool, error) {
	parsed, err := HotswapABI()
	if err != nil {
		return common.Hash{}, false, err
	}
	for _, ev := range parsed.Events {
		if strings.EqualFold(ev.Name, name) {
			return ev.ID, true, nil
		}
	}
	return common.Hash{}, false, nil
}
