package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"hotswap/internal/model"
)

var (
	registry   = common.HexToAddress("0xf0")
	controller = common.HexToAddress("0xc0")
	vaultAddr  = common.HexToAddress("0xa0")
	trader     = common.HexToAddress("0xb0b")
)

func TestEncodeDecodeEvents(t *testing.T) {
	cases := []model.Event{
		model.Deployed{Registry: registry, PairID: 4, Controller: controller, Vault: vaultAddr, NFT: common.HexToAddress("0x11"), FFT: common.HexToAddress("0x22")},
		model.SwapRecord{
			Controller:      controller,
			Trader:          trader,
			NFTAmount:       3,
			FFTAmount:       uint256.MustFromDecimal("270000000000000000000"),
			Fee:             uint256.MustFromDecimal("810000000000000000"),
			Direction:       model.DirectionFFTIn,
			SettlementPrice: uint256.MustFromDecimal("90000000000000000000"),
		},
		model.Deposited{Vault: vaultAddr, Owner: trader, Kind: model.KindFFT, Index: 2, Amount: uint256.NewInt(900)},
		model.Withdrawn{Vault: vaultAddr, Owner: trader, Kind: model.KindNFT, Index: 0, Amount: uint256.NewInt(10)},
		model.FeeClaimed{Vault: vaultAddr, Owner: trader, Kind: model.KindNFT, Index: 1, Amount: uint256.NewInt(7)},
		model.PriceUpdated{Controller: controller, Price: uint256.NewInt(90)},
		model.Rebound{Registry: registry, Controller: controller, Vault: vaultAddr, PreviousController: common.HexToAddress("0xc1")},
		model.FactoryChanged{Registry: registry, Controller: controller, NewFactory: common.HexToAddress("0xf1")},
	}

	for i, ev := range cases {
		t.Run(ev.EventName(), func(t *testing.T) {
			rec, err := ToRecord(ev, 56, uint64(i), time.Unix(0, 0))
			require.NoError(t, err)
			require.Equal(t, ev.EventName(), rec.EventName)
			require.Equal(t, ev.Source().Hex(), rec.Address)

			got, err := Decode(rec)
			require.NoError(t, err)
			require.Equal(t, ev, got)
		})
	}
}

func TestTopic0sCoverEveryEvent(t *testing.T) {
	topics, err := Topic0s()
	require.NoError(t, err)
	require.Len(t, topics, 8)
}

func TestDecodeUnknownTopic(t *testing.T) {
	_, err := Decode(model.LogRecord{Topics: []string{common.Hash{1}.Hex()}, Data: "0x"})
	require.ErrorIs(t, err, ErrUnknownEvent)
	_, err = Decode(model.LogRecord{Data: "0x"})
	require.ErrorIs(t, err, ErrUnknownEvent)
}

type memStore struct {
	fail bool
	logs []model.LogRecord
}

func (m *memStore) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	if m.fail {
		return errors.New("store down")
	}
	m.logs = append(m.logs, logs...)
	return nil
}

func TestLogSinkBuffersUntilFlush(t *testing.T) {
	store := &memStore{fail: true}
	sink := NewLogSink(store, 1, nil)
	rec := NewRecorder()
	emit := Multi{sink, rec, nil}

	emit.Emit(model.PriceUpdated{Controller: controller, Price: uint256.NewInt(1)})
	emit.Emit(model.PriceUpdated{Controller: controller, Price: uint256.NewInt(2)})
	require.Equal(t, 2, sink.Pending())
	require.Equal(t, 2, rec.Len())

	require.Error(t, sink.Flush(context.Background()))
	require.Equal(t, 2, sink.Pending())

	store.fail = false
	require.NoError(t, sink.Flush(context.Background()))
	require.Zero(t, sink.Pending())
	require.Len(t, store.logs, 2)
	require.Equal(t, uint64(0), store.logs[0].Sequence)
	require.Equal(t, uint64(1), store.logs[1].Sequence)
}
