package events

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"hotswap/internal/model"
)

// ErrUnknownEvent is returned for logs whose topic0 is not a Hotswap event.
var ErrUnknownEvent = errors.New("unknown event")

// Encode ABI-encodes e as EVM log topics and data.
func Encode(e model.Event) ([]common.Hash, []byte, error) {
	parsed, err := HotswapABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse hotswap abi: %w", err)
	}
	ev, ok := parsed.Events[e.EventName()]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.EventName())
	}

	var indexed []common.Address
	var values []interface{}
	switch v := e.(type) {
	case model.Deployed:
		indexed = []common.Address{v.Controller, v.Vault}
		values = []interface{}{new(big.Int).SetUint64(v.PairID), v.NFT, v.FFT}
	case model.SwapRecord:
		indexed = []common.Address{v.Trader}
		values = []interface{}{new(big.Int).SetUint64(v.NFTAmount), toBig(v.FFTAmount), uint8(v.Direction), toBig(v.SettlementPrice), toBig(v.Fee)}
	case model.Deposited:
		indexed = []common.Address{v.Owner}
		values = []interface{}{uint8(v.Kind), new(big.Int).SetUint64(v.Index), toBig(v.Amount)}
	case model.Withdrawn:
		indexed = []common.Address{v.Owner}
		values = []interface{}{uint8(v.Kind), new(big.Int).SetUint64(v.Index), toBig(v.Amount)}
	case model.FeeClaimed:
		indexed = []common.Address{v.Owner}
		values = []interface{}{uint8(v.Kind), new(big.Int).SetUint64(v.Index), toBig(v.Amount)}
	case model.PriceUpdated:
		values = []interface{}{toBig(v.Price)}
	case model.Rebound:
		indexed = []common.Address{v.Controller, v.Vault}
		values = []interface{}{v.PreviousController, v.PreviousVault}
	case model.FactoryChanged:
		indexed = []common.Address{v.Controller, v.NewFactory}
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}

	data, err := ev.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", ev.Name, err)
	}
	topics := make([]common.Hash, 0, 1+len(indexed))
	topics = append(topics, ev.ID)
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()))
	}
	return topics, data, nil
}

// ToRecord encodes e as a log record emitted by e.Source().
func ToRecord(e model.Event, chainID, sequence uint64, ingestedAt time.Time) (model.LogRecord, error) {
	topics, data, err := Encode(e)
	if err != nil {
		return model.LogRecord{}, err
	}
	hexTopics := make([]string, 0, len(topics))
	for _, t := range topics {
		hexTopics = append(hexTopics, t.Hex())
	}
	return model.LogRecord{
		ChainID:    chainID,
		Sequence:   sequence,
		LogIndex:   sequence,
		Address:    e.Source().Hex(),
		EventName:  e.EventName(),
		Topics:     hexTopics,
		Data:       hexutil.Encode(data),
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// Decode parses a log record back into the event it carries.
func Decode(rec model.LogRecord) (model.Event, error) {
	parsed, err := HotswapABI()
	if err != nil {
		return nil, fmt.Errorf("parse hotswap abi: %w", err)
	}
	if len(rec.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrUnknownEvent)
	}
	ev, err := parsed.EventByID(common.HexToHash(rec.Topics[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, rec.Topics[0])
	}
	data, err := hexutil.Decode(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	values, err := ev.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", ev.Name, err)
	}

	wantTopics := 1
	for _, in := range ev.Inputs {
		if in.Indexed {
			wantTopics++
		}
	}
	if len(rec.Topics) != wantTopics {
		return nil, fmt.Errorf("%s: expected %d topics, got %d", ev.Name, wantTopics, len(rec.Topics))
	}
	topic := func(i int) common.Address {
		return common.BytesToAddress(common.HexToHash(rec.Topics[i]).Bytes())
	}
	source := common.HexToAddress(rec.Address)

	d := decoder{values: values}
	var out model.Event
	switch ev.Name {
	case model.EventDeployed:
		out = model.Deployed{Registry: source, Controller: topic(1), Vault: topic(2), PairID: d.u64(0), NFT: d.addr(1), FFT: d.addr(2)}
	case model.EventSwap:
		out = model.SwapRecord{
			Controller:      source,
			Trader:          topic(1),
			NFTAmount:       d.u64(0),
			FFTAmount:       d.u256(1),
			Direction:       model.Direction(d.u8(2)),
			SettlementPrice: d.u256(3),
			Fee:             d.u256(4),
		}
	case model.EventDeposited:
		out = model.Deposited{Vault: source, Owner: topic(1), Kind: model.Kind(d.u8(0)), Index: d.u64(1), Amount: d.u256(2)}
	case model.EventWithdrawn:
		out = model.Withdrawn{Vault: source, Owner: topic(1), Kind: model.Kind(d.u8(0)), Index: d.u64(1), Amount: d.u256(2)}
	case model.EventFeeClaimed:
		out = model.FeeClaimed{Vault: source, Owner: topic(1), Kind: model.Kind(d.u8(0)), Index: d.u64(1), Amount: d.u256(2)}
	case model.EventPriceUpdated:
		out = model.PriceUpdated{Controller: source, Price: d.u256(0)}
	case model.EventRebound:
		out = model.Rebound{Registry: source, Controller: topic(1), Vault: topic(2), PreviousController: d.addr(0), PreviousVault: d.addr(1)}
	case model.EventFactoryChanged:
		out = model.FactoryChanged{Registry: source, Controller: topic(1), NewFactory: topic(2)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}
	if d.err != nil {
		return nil, fmt.Errorf("%s: %w", ev.Name, d.err)
	}
	return out, nil
}

// decoder converts unpacked ABI values, keeping the first error.
type decoder struct {
	values []interface{}
	err    error
}

func (d *decoder) value(i int) interface{} {
	if i >= len(d.values) {
		d.fail("missing value %d", i)
		return nil
	}
	return d.values[i]
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) bigInt(i int) *big.Int {
	v := d.value(i)
	b, ok := v.(*big.Int)
	if !ok {
		d.fail("value %d: unsupported int type %T", i, v)
		return new(big.Int)
	}
	return b
}

func (d *decoder) u256(i int) *uint256.Int {
	out, overflow := uint256.FromBig(d.bigInt(i))
	if overflow {
		d.fail("value %d overflows uint256", i)
	}
	return out
}

func (d *decoder) u64(i int) uint64 {
	b := d.bigInt(i)
	if !b.IsUint64() {
		d.fail("value %d overflows uint64", i)
		return 0
	}
	return b.Uint64()
}

func (d *decoder) u8(i int) uint8 {
	v := d.value(i)
	out, ok := v.(uint8)
	if !ok {
		d.fail("value %d: unsupported uint8 type %T", i, v)
	}
	return out
}

func (d *decoder) addr(i int) common.Address {
	v := d.value(i)
	out, ok := v.(common.Address)
	if !ok {
		d.fail("value %d: unsupported address type %T", i, v)
	}
	return out
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
