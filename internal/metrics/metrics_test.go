package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"hotswap/internal/model"
)

func TestEmitCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctrl := common.HexToAddress("0xc0")
	vault := common.HexToAddress("0xa0")

	m.Emit(model.SwapRecord{
		Controller:      ctrl,
		NFTAmount:       3,
		FFTAmount:       uint256.NewInt(270),
		Fee:             uint256.NewInt(1),
		Direction:       model.DirectionFFTIn,
		SettlementPrice: uint256.NewInt(90),
	})
	m.Emit(model.Deposited{Vault: vault, Kind: model.KindNFT, Amount: uint256.NewInt(10)})
	m.Emit(model.Deposited{Vault: vault, Kind: model.KindNFT, Amount: uint256.NewInt(2)})
	m.Emit(model.Rebound{})

	require.Equal(t, 1.0, testutil.ToFloat64(m.SwapsTotal.WithLabelValues(ctrl.Hex(), "fft_in")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SwapNFTs.WithLabelValues(ctrl.Hex(), "fft_in")))
	require.Equal(t, 270.0, testutil.ToFloat64(m.SwapVolume.WithLabelValues(ctrl.Hex(), "fft_in")))
	require.Equal(t, 90.0, testutil.ToFloat64(m.SettlePrice.WithLabelValues(ctrl.Hex())))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Deposits.WithLabelValues(vault.Hex(), "nft")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Rebinds))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.True(t, strings.Contains(rec.Body.String(), "hotswap_controller_swaps_total"))
}
