package pairing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"hotswap/internal/errs"
	"hotswap/internal/vault"
)

var (
	deployer = common.HexToAddress("0xd0")
	registry = common.HexToAddress("0xf0")
	admin    = common.HexToAddress("0xad")
	nft      = common.HexToAddress("0x1111")
	fft      = common.HexToAddress("0x2222")
)

func newPair(t *testing.T, tbl *Table) (common.Address, common.Address) {
	t.Helper()
	v := tbl.NewVault(deployer, registry, vault.Options{NFT: nft, FFT: fft})
	c := tbl.NextAddress(deployer)
	require.NoError(t, tbl.RegisterController(c, nft, fft, registry))
	_, err := tbl.Bind(c, v.Address(), registry, admin)
	require.NoError(t, err)
	return c, v.Address()
}

func TestNextAddressIsDeterministic(t *testing.T) {
	a := NewTable()
	b := NewTable()
	require.Equal(t, a.NextAddress(deployer), b.NextAddress(deployer))
	require.NotEqual(t, a.NextAddress(deployer), a.NextAddress(deployer))
}

func TestBindIsTwoSided(t *testing.T) {
	tbl := NewTable()
	c, v := newPair(t, tbl)

	require.Equal(t, v, tbl.VaultOf(c))
	require.Equal(t, c, tbl.ControllerOf(v))
	require.NoError(t, tbl.Check(c, v))
	require.NoError(t, tbl.CheckAll())
}

func TestRebindControllerRetiresPrevious(t *testing.T) {
	tbl := NewTable()
	c1, v := newPair(t, tbl)
	c2 := tbl.NextAddress(deployer)
	require.NoError(t, tbl.RegisterController(c2, nft, fft, admin))

	rb, err := tbl.Bind(c2, v, registry, admin)
	require.NoError(t, err)
	require.Equal(t, c1, rb.PreviousController)
	require.Equal(t, common.Address{}, rb.PreviousVault)

	require.Equal(t, c2, tbl.ControllerOf(v))
	require.Equal(t, common.Address{}, tbl.VaultOf(c1))
	owner, err := tbl.OwnerOf(c1)
	require.NoError(t, err)
	require.Equal(t, admin, owner)
	owner, err = tbl.OwnerOf(c2)
	require.NoError(t, err)
	require.Equal(t, registry, owner)
	require.NoError(t, tbl.CheckAll())
}

func TestRebindVaultRetiresPrevious(t *testing.T) {
	tbl := NewTable()
	c, v1 := newPair(t, tbl)
	v2 := tbl.NewVault(deployer, admin, vault.Options{NFT: nft, FFT: fft}).Address()

	rb, err := tbl.Bind(c, v2, registry, admin)
	require.NoError(t, err)
	require.Equal(t, v1, rb.PreviousVault)
	require.Equal(t, common.Address{}, tbl.ControllerOf(v1))
	require.Equal(t, c, tbl.ControllerOf(v2))
	require.NoError(t, tbl.CheckAll())
}

func TestBindRejectsMismatchedAssets(t *testing.T) {
	tbl := NewTable()
	c, v := newPair(t, tbl)
	other := tbl.NewVault(deployer, registry, vault.Options{NFT: nft, FFT: common.HexToAddress("0x3333")})

	_, err := tbl.Bind(c, other.Address(), registry, admin)
	require.ErrorIs(t, err, errs.ErrAssetMismatch)
	require.Equal(t, v, tbl.VaultOf(c))
}

func TestBindUnknownEntity(t *testing.T) {
	tbl := NewTable()
	_, v := newPair(t, tbl)
	_, err := tbl.Bind(common.HexToAddress("0xbad"), v, registry, admin)
	require.ErrorIs(t, err, errs.ErrUnknownEntity)
}

func TestTransferOwnershipRequiresCurrentOwner(t *testing.T) {
	tbl := NewTable()
	c, _ := newPair(t, tbl)

	err := tbl.TransferOwnership(admin, admin, c)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	require.NoError(t, tbl.TransferOwnership(registry, admin, c))
	owner, err := tbl.OwnerOf(c)
	require.NoError(t, err)
	require.Equal(t, admin, owner)
}

func TestTransferOwnershipMovesAllOrNone(t *testing.T) {
	tbl := NewTable()
	c, v := newPair(t, tbl)
	require.NoError(t, tbl.TransferOwnership(registry, admin, v))

	err := tbl.TransferOwnership(registry, deployer, c, v)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	owner, err := tbl.OwnerOf(c)
	require.NoError(t, err)
	require.Equal(t, registry, owner)

	require.NoError(t, tbl.TransferOwnership(admin, registry, v))
	require.NoError(t, tbl.TransferOwnership(registry, deployer, c, v))
	for _, addr := range []common.Address{c, v} {
		owner, err := tbl.OwnerOf(addr)
		require.NoError(t, err)
		require.Equal(t, deployer, owner)
	}
}

func TestCheckDetectsUnpairedCouple(t *testing.T) {
	tbl := NewTable()
	c, _ := newPair(t, tbl)
	v2 := tbl.NewVault(deployer, registry, vault.Options{NFT: nft, FFT: fft}).Address()
	require.ErrorIs(t, tbl.Check(c, v2), errs.ErrPairingInvariantViolation)
}
