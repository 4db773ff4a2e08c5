package registry

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"hotswap/internal/controller"
	"hotswap/internal/errs"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
)

// SetController re-points vault at next. The displaced controller is
// unbound and handed to caller; next is adopted by the registry. Reserves and
// positions stay in the vault.
func (r *Registry) SetController(caller, vaultAddr common.Address, next *controller.Controller) (model.Rebound, error) {
	var out model.Rebound
	err := r.table.Atomic(func() error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if err := r.requireOwner(vaultAddr, r.addr); err != nil {
			return err
		}
		if err := r.requireOwner(next.Address(), r.addr, caller); err != nil {
			return err
		}
		rb, err := r.rebind(caller, next, vaultAddr, true)
		if err != nil {
			return err
		}
		out = rb
		return nil
	})
	return out, err
}

// SetLiquidity re-points ctrl at vaultAddr. The displaced vault, with its
// custody, is unbound and handed to caller; vaultAddr is adopted by the
// registry. A controller received through SetFactory is registered here with
// its current vault.
func (r *Registry) SetLiquidity(caller common.Address, ctrl *controller.Controller, vaultAddr common.Address) (model.Rebound, error) {
	var out model.Rebound
	err := r.table.Atomic(func() error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if err := r.requireOwner(ctrl.Address(), r.addr); err != nil {
			return err
		}
		if err := r.requireOwner(vaultAddr, r.addr, caller); err != nil {
			return err
		}
		rb, err := r.rebind(caller, ctrl, vaultAddr, false)
		if err != nil {
			return err
		}
		out = rb
		return nil
	})
	return out, err
}

// SetFactory hands governance of ctrl and its vault to another registry and
// clears this registry's slot for them.
func (r *Registry) SetFactory(caller, ctrlAddr, newFactory common.Address) error {
	return r.table.Atomic(func() error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		if newFactory == (common.Address{}) || newFactory == r.addr {
			return errs.ErrUnauthorized.Wrapf("invalid factory %s", newFactory.Hex())
		}
		if err := r.requireOwner(ctrlAddr, r.addr); err != nil {
			return err
		}
		vaultAddr := r.table.VaultOf(ctrlAddr)
		owned := []common.Address{ctrlAddr}
		if vaultAddr != (common.Address{}) {
			owned = append(owned, vaultAddr)
		}
		// Controller and vault move together or not at all.
		if err := r.table.TransferOwnership(r.addr, newFactory, owned...); err != nil {
			r.logger.Error("factory change rejected",
				zap.String("controller", ctrlAddr.Hex()),
				zap.String("vault", vaultAddr.Hex()),
				zap.Error(err),
			)
			return err
		}

		r.mu.Lock()
		for i := range r.pairs {
			if r.pairs[i].Controller == ctrlAddr {
				r.pairs[i].Controller = common.Address{}
				r.pairs[i].Vault = common.Address{}
			}
		}
		delete(r.controllers, ctrlAddr)
		r.mu.Unlock()

		r.logger.Info("factory changed",
			zap.String("controller", ctrlAddr.Hex()),
			zap.String("vault", vaultAddr.Hex()),
			zap.String("factory", newFactory.Hex()),
		)
		r.emitter.Emit(model.FactoryChanged{Registry: r.addr, Controller: ctrlAddr, NewFactory: newFactory})
		return nil
	})
}

func (r *Registry) requireOwner(addr common.Address, allowed ...common.Address) error {
	owner, err := r.table.OwnerOf(addr)
	if err != nil {
		return err
	}
	for _, a := range allowed {
		if owner == a {
			return nil
		}
	}
	return errs.ErrUnauthorized.Wrapf("%s is owned by %s", addr.Hex(), owner.Hex())
}

// rebind binds ctrl to vaultAddr and rewrites the pair slots. keyByVault
// selects which side identifies the slot being updated.
func (r *Registry) rebind(caller common.Address, ctrl *controller.Controller, vaultAddr common.Address, keyByVault bool) (model.Rebound, error) {
	rb, err := r.table.Bind(ctrl.Address(), vaultAddr, r.addr, caller)
	if err != nil {
		return model.Rebound{}, err
	}
	if err := r.table.Check(ctrl.Address(), vaultAddr); err != nil {
		return model.Rebound{}, err
	}

	nft, fft := ctrl.Assets()
	r.mu.Lock()
	slot := -1
	for i, p := range r.pairs {
		if (keyByVault && p.Vault == vaultAddr) || (!keyByVault && p.Controller == ctrl.Address()) {
			slot = i
			break
		}
	}
	if slot < 0 {
		slot = len(r.pairs)
		r.pairs = append(r.pairs, model.Pairing{Pair: model.Pair{ID: uint64(slot), NFT: nft, FFT: fft}})
	}
	r.pairs[slot].Controller = ctrl.Address()
	r.pairs[slot].Vault = vaultAddr
	for i := range r.pairs {
		if i != slot && (r.pairs[i].Controller == ctrl.Address() || r.pairs[i].Vault == vaultAddr) {
			r.pairs[i].Controller = common.Address{}
			r.pairs[i].Vault = common.Address{}
		}
	}
	if rb.PreviousController != (common.Address{}) {
		delete(r.controllers, rb.PreviousController)
	}
	r.controllers[ctrl.Address()] = ctrl
	r.mu.Unlock()

	ev := reboundEvent(r.addr, ctrl.Address(), vaultAddr, rb)
	r.logger.Info("pair rebound",
		zap.String("controller", ev.Controller.Hex()),
		zap.String("vault", ev.Vault.Hex()),
		zap.String("previous_controller", ev.PreviousController.Hex()),
		zap.String("previous_vault", ev.PreviousVault.Hex()),
	)
	r.emitter.Emit(ev)
	return ev, nil
}

func reboundEvent(registry, ctrl, vaultAddr common.Address, rb pairing.Rebinding) model.Rebound {
	return model.Rebound{
		Registry:           registry,
		Controller:         ctrl,
		Vault:              vaultAddr,
		PreviousController: rb.PreviousController,
		PreviousVault:      rb.PreviousVault,
	}
}
