// Package metrics exposes Prometheus counters fed by emitted events.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hotswap/internal/model"
)

const namespace = "hotswap"

// Metrics implements events.Emitter.
type Metrics struct {
	SwapsTotal     *prometheus.CounterVec
	SwapNFTs       *prometheus.CounterVec
	SwapVolume     *prometheus.CounterVec
	SwapFees       *prometheus.CounterVec
	Deposits       *prometheus.CounterVec
	Withdrawals    *prometheus.CounterVec
	FeeClaims      *prometheus.CounterVec
	SettlePrice    *prometheus.GaugeVec
	Deployments    prometheus.Counter
	Rebinds        prometheus.Counter
	FactoryChanges prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SwapsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "swaps_total",
			Help: "Settled swaps",
		}, []string{"controller", "direction"}),
		SwapNFTs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "swap_nfts_total",
			Help: "NFTs moved by settled swaps",
		}, []string{"controller", "direction"}),
		SwapVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "swap_volume_total",
			Help: "Fungible volume of settled swaps in base units",
		}, []string{"controller", "direction"}),
		SwapFees: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "swap_fees_total",
			Help: "Swap fees credited to positions in base units",
		}, []string{"controller"}),
		Deposits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vault", Name: "deposits_total",
			Help: "Positions opened",
		}, []string{"vault", "kind"}),
		Withdrawals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vault", Name: "withdrawals_total",
			Help: "Principal payouts",
		}, []string{"vault", "kind"}),
		FeeClaims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vault", Name: "fee_claims_total",
			Help: "Fees paid out in base units",
		}, []string{"vault"}),
		SettlePrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "controller", Name: "price",
			Help: "Last settlement or refreshed price in base units per NFT",
		}, []string{"controller"}),
		Deployments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "registry", Name: "deployments_total",
			Help: "Pairs deployed",
		}),
		Rebinds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "registry", Name: "rebinds_total",
			Help: "Hot swaps of a controller or vault",
		}),
		FactoryChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "registry", Name: "factory_changes_total",
			Help: "Pairs handed to another registry",
		}),
	}
}

func (m *Metrics) Emit(e model.Event) {
	switch v := e.(type) {
	case model.SwapRecord:
		labels := []string{v.Controller.Hex(), v.Direction.String()}
		m.SwapsTotal.WithLabelValues(labels...).Inc()
		m.SwapNFTs.WithLabelValues(labels...).Add(float64(v.NFTAmount))
		m.SwapVolume.WithLabelValues(labels...).Add(toFloat(v.FFTAmount))
		m.SwapFees.WithLabelValues(v.Controller.Hex()).Add(toFloat(v.Fee))
		m.SettlePrice.WithLabelValues(v.Controller.Hex()).Set(toFloat(v.SettlementPrice))
	case model.PriceUpdated:
		m.SettlePrice.WithLabelValues(v.Controller.Hex()).Set(toFloat(v.Price))
	case model.Deposited:
		m.Deposits.WithLabelValues(v.Vault.Hex(), v.Kind.String()).Inc()
	case model.Withdrawn:
		m.Withdrawals.WithLabelValues(v.Vault.Hex(), v.Kind.String()).Inc()
	case model.FeeClaimed:
		m.FeeClaims.WithLabelValues(v.Vault.Hex()).Add(toFloat(v.Amount))
	case model.Deployed:
		m.Deployments.Inc()
	case model.Rebound:
		m.Rebinds.Inc()
	case model.FactoryChanged:
		m.FactoryChanges.Inc()
	}
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
