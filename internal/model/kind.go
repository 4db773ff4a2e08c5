package model

import (
	"fmt"
	"strings"
)

// Kind identifies which side of a pair a position or reserve belongs to.
type Kind uint8

const (
	KindNFT Kind = iota
	KindFFT
)

// Kinds lists every kind in index-space order.
var Kinds = [...]Kind{KindNFT, KindFFT}

func (k Kind) String() string {
	switch k {
	case KindNFT:
		return "nft"
	case KindFFT:
		return "fft"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindNFT || k == KindFFT
}

// ParseKind parses "nft" or "fft" (case-insensitive).
func ParseKind(input string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "nft":
		return KindNFT, nil
	case "fft", "token", "erc20":
		return KindFFT, nil
	default:
		return 0, fmt.Errorf("unknown kind: %q", input)
	}
}

// Direction is the side the trader pays in.
type Direction uint8

const (
	// DirectionFFTIn: trader pays fungible tokens and receives NFTs.
	DirectionFFTIn Direction = iota
	// DirectionNFTIn: trader pays NFTs and receives fungible tokens.
	DirectionNFTIn
)

func (d Direction) String() string {
	switch d {
	case DirectionFFTIn:
		return "fft_in"
	case DirectionNFTIn:
		return "nft_in"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "fft_in"/"buy" and "nft_in"/"sell".
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "fft_in", "fft-in", "buy":
		return DirectionFFTIn, nil
	case "nft_in", "nft-in", "sell":
		return DirectionNFTIn, nil
	default:
		return 0, fmt.Errorf("unknown direction: %q", input)
	}
}
