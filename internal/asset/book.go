package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when the sender does not hold enough.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownToken is returned for decimals lookups of unregistered tokens.
	ErrUnknownToken = errors.New("unknown token")
)

// Book is an in-memory Ledger and Metadata source.
type Book struct {
	mu       sync.RWMutex
	fungible map[common.Address]map[common.Address]*uint256.Int
	nfts     map[common.Address]map[common.Address]uint64
	decimals map[common.Address]uint8
}

func NewBook() *Book {
	return &Book{
		fungible: make(map[common.Address]map[common.Address]*uint256.Int),
		nfts:     make(map[common.Address]map[common.Address]uint64),
		decimals: map[common.Address]uint8{Native: 18},
	}
}

// RegisterToken records the decimal precision of a fungible token.
func (b *Book) RegisterToken(token common.Address, decimals uint8) {
	b.mu.Lock()
	b.decimals[token] = decimals
	b.mu.Unlock()
}

// Decimals implements Metadata.
func (b *Book) Decimals(_ context.Context, token common.Address) (uint8, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.decimals[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return d, nil
}

// Mint credits amount of token to holder.
func (b *Book) Mint(token, holder common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.fungibleBalance(token, holder)
	bal.Add(bal, amount)
}

// MintNFT credits count units of collection to holder.
func (b *Book) MintNFT(collection, holder common.Address, count uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nfts[collection] == nil {
		b.nfts[collection] = make(map[common.Address]uint64)
	}
	b.nfts[collection][holder] += count
}

// Balance returns a copy of holder's balance of token.
func (b *Book) Balance(token, holder common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.fungible[token][holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// NFTBalance returns how many units of collection holder owns.
func (b *Book) NFTBalance(collection, holder common.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nfts[collection][holder]
}

// TransferFungible implements Ledger.
func (b *Book) TransferFungible(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.fungibleBalance(token, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), src, token.Hex(), amount)
	}
	src.Sub(src, amount)
	dst := b.fungibleBalance(token, to)
	dst.Add(dst, amount)
	return nil
}

// TransferNFT implements Ledger.
func (b *Book) TransferNFT(ctx context.Context, collection, from, to common.Address, count uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	holders := b.nfts[collection]
	if holders[from] < count {
		return fmt.Errorf("%w: %s owns %d of %s, needs %d", ErrInsufficientBalance, from.Hex(), holders[from], collection.Hex(), count)
	}
	holders[from] -= count
	holders[to] += count
	return nil
}

func (b *Book) fungibleBalance(token, holder common.Address) *uint256.Int {
	holders := b.fungible[token]
	if holders == nil {
		holders = make(map[common.Address]*uint256.Int)
		b.fungible[token] = holders
	}
	bal := holders[holder]
	if bal == nil {
		bal = new(uint256.Int)
		holders[holder] = bal
	}
	return bal
}

var (
	_ Ledger   = (*Book)(nil)
	_ Metadata = (*Book)(nil)
)
