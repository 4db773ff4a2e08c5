// Package pairing tracks which controller is bound to which vault, who owns
// each of them, and serializes every state-changing operation.
package pairing

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"hotswap/internal/errs"
	"hotswap/internal/vault"
)

// Table is the arena of controllers and vaults. Bindings are stored on both
// sides and always rewritten together, so ControllerOf(VaultOf(c)) == c for
// every bound controller.
type Table struct {
	op sync.Mutex // held for the whole of an Atomic call

	mu          sync.RWMutex
	vaults      map[common.Address]*vaultEntry
	controllers map[common.Address]*controllerEntry
	nonces      map[common.Address]uint64
}

type vaultEntry struct {
	vault      *vault.Vault
	controller common.Address
	owner      common.Address
}

type controllerEntry struct {
	nft   common.Address
	fft   common.Address
	vault common.Address
	owner common.Address
}

// Rebinding reports the counterparts a Bind displaced.
type Rebinding struct {
	PreviousController common.Address
	PreviousVault      common.Address
}

func NewTable() *Table {
	return &Table{
		vaults:      make(map[common.Address]*vaultEntry),
		controllers: make(map[common.Address]*controllerEntry),
		nonces:      make(map[common.Address]uint64),
	}
}

// Atomic runs fn while holding the global operation lock. Nothing else that
// goes through Atomic can observe the state between fn's steps.
func (t *Table) Atomic(fn func() error) error {
	t.op.Lock()
	defer t.op.Unlock()
	return fn()
}

// NextAddress derives a fresh contract address for deployer from its nonce.
func (t *Table) NextAddress(deployer common.Address) common.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.nonces[deployer]
	t.nonces[deployer] = n + 1
	return crypto.CreateAddress(deployer, n)
}

// NewVault deploys an empty, unbound vault owned by owner.
func (t *Table) NewVault(deployer, owner common.Address, opts vault.Options) *vault.Vault {
	addr := t.NextAddress(deployer)
	v := vault.New(addr, t, opts)

	t.mu.Lock()
	t.vaults[addr] = &vaultEntry{vault: v, owner: owner}
	t.mu.Unlock()
	return v
}

// RegisterController records an unbound controller for the given assets.
func (t *Table) RegisterController(addr, nft, fft, owner common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.controllers[addr]; ok {
		return errs.ErrUnknownEntity.Wrapf("controller %s already registered", addr.Hex())
	}
	t.controllers[addr] = &controllerEntry{nft: nft, fft: fft, owner: owner}
	return nil
}

// Vault returns the vault deployed at addr.
func (t *Table) Vault(addr common.Address) (*vault.Vault, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.vaults[addr]
	if !ok {
		return nil, false
	}
	return e.vault, true
}

// ControllerOf returns the controller bound to vault, or the zero address.
func (t *Table) ControllerOf(vault common.Address) common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.vaults[vault]; ok {
		return e.controller
	}
	return common.Address{}
}

// VaultOf returns the vault bound to controller, or the zero address.
func (t *Table) VaultOf(controller common.Address) common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.controllers[controller]; ok {
		return e.vault
	}
	return common.Address{}
}

// OwnerOf returns the owner of a controller or vault.
func (t *Table) OwnerOf(addr common.Address) (common.Address, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.controllers[addr]; ok {
		return e.owner, nil
	}
	if e, ok := t.vaults[addr]; ok {
		return e.owner, nil
	}
	return common.Address{}, errs.ErrUnknownEntity.Wrapf("%s", addr.Hex())
}

// TransferOwnership hands every addr from from to next. Each one must be
// owned by from, otherwise none of them moves.
func (t *Table) TransferOwnership(from, next common.Address, addrs ...common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs := make([]*common.Address, 0, len(addrs))
	for _, addr := range addrs {
		owner, err := t.ownerRef(addr)
		if err != nil {
			return err
		}
		if *owner != from {
			return errs.ErrUnauthorized.Wrapf("%s is owned by %s, not %s", addr.Hex(), owner.Hex(), from.Hex())
		}
		refs = append(refs, owner)
	}
	for _, owner := range refs {
		*owner = next
	}
	return nil
}

func (t *Table) ownerRef(addr common.Address) (*common.Address, error) {
	if e, ok := t.controllers[addr]; ok {
		return &e.owner, nil
	}
	if e, ok := t.vaults[addr]; ok {
		return &e.owner, nil
	}
	return nil, errs.ErrUnknownEntity.Wrapf("%s", addr.Hex())
}

// Bind pairs controller with vault in one step. Both end up owned by owner.
// A counterpart displaced from either side is left unbound and handed to
// retiree. Binding an already paired couple only rewrites ownership.
func (t *Table) Bind(controller, vaultAddr, owner, retiree common.Address) (Rebinding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.controllers[controller]
	if !ok {
		return Rebinding{}, errs.ErrUnknownEntity.Wrapf("controller %s", controller.Hex())
	}
	v, ok := t.vaults[vaultAddr]
	if !ok {
		return Rebinding{}, errs.ErrUnknownEntity.Wrapf("vault %s", vaultAddr.Hex())
	}
	nft, fft := v.vault.Assets()
	if nft != c.nft || fft != c.fft {
		return Rebinding{}, errs.ErrAssetMismatch.Wrapf("controller %s trades %s/%s, vault %s holds %s/%s",
			controller.Hex(), c.nft.Hex(), c.fft.Hex(), vaultAddr.Hex(), nft.Hex(), fft.Hex())
	}

	var rb Rebinding
	if prev := v.controller; prev != (common.Address{}) && prev != controller {
		if pe, ok := t.controllers[prev]; ok {
			pe.vault = common.Address{}
			pe.owner = retiree
		}
		rb.PreviousController = prev
	}
	if prev := c.vault; prev != (common.Address{}) && prev != vaultAddr {
		if pe, ok := t.vaults[prev]; ok {
			pe.controller = common.Address{}
			pe.owner = retiree
		}
		rb.PreviousVault = prev
	}
	c.vault = vaultAddr
	v.controller = controller
	c.owner = owner
	v.owner = owner
	return rb, nil
}

// Check verifies that controller and vault point at each other.
func (t *Table) Check(controller, vaultAddr common.Address) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.controllers[controller]
	if !ok {
		return errs.ErrPairingInvariantViolation.Wrapf("controller %s not registered", controller.Hex())
	}
	v, ok := t.vaults[vaultAddr]
	if !ok {
		return errs.ErrPairingInvariantViolation.Wrapf("vault %s not registered", vaultAddr.Hex())
	}
	if c.vault != vaultAddr || v.controller != controller {
		return errs.ErrPairingInvariantViolation.Wrapf("controller %s -> %s, vault %s -> %s",
			controller.Hex(), c.vault.Hex(), vaultAddr.Hex(), v.controller.Hex())
	}
	return nil
}

// CheckAll verifies both sides of every binding in the table.
func (t *Table) CheckAll() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for addr, c := range t.controllers {
		if c.vault == (common.Address{}) {
			continue
		}
		v, ok := t.vaults[c.vault]
		if !ok || v.controller != addr {
			return errs.ErrPairingInvariantViolation.Wrapf("controller %s points at %s which does not point back", addr.Hex(), c.vault.Hex())
		}
	}
	for addr, v := range t.vaults {
		if v.controller == (common.Address{}) {
			continue
		}
		c, ok := t.controllers[v.controller]
		if !ok || c.vault != addr {
			return errs.ErrPairingInvariantViolation.Wrapf("vault %s points at %s which does not point back", addr.Hex(), v.controller.Hex())
		}
	}
	return nil
}
