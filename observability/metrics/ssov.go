package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SSOVMetrics struct {
	operations     *prometheus.CounterVec
	deposits       *prometheus.CounterVec
	premium        *prometheus.CounterVec
	fees           *prometheus.CounterVec
	settlements    *prometheus.CounterVec
	withdrawals    *prometheus.CounterVec
	currentEpoch   *prometheus.GaugeVec
	epochDeposits  *prometheus.GaugeVec
	compounded     *prometheus.CounterVec
	roundingDust   *prometheus.GaugeVec
	settlementSpot *prometheus.GaugeVec
}

var (
	ssovOnce     sync.Once
	ssovRegistry *SSOVMetrics
)

func SSOV() *SSOVMetrics {
	ssovOnce.Do(func() {
		ssovRegistry = &SSOVMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_operations_total",
				Help: "Vault operations by name and outcome.",
			}, []string{"vault", "operation", "outcome"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_deposits_total",
				Help: "Collateral deposited, in whole asset units.",
			}, []string{"vault"}),
			premium: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_premium_total",
				Help: "Premium collected from call purchases, in whole asset units.",
			}, []string{"vault"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_fees_total",
				Help: "Protocol fees routed to the fee distributor by kind.",
			}, []string{"vault", "kind"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_settlement_payout_total",
				Help: "Net payouts to exercised call holders.",
			}, []string{"vault"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_withdrawals_total",
				Help: "Collateral returned to depositors after expiry.",
			}, []string{"vault"}),
			currentEpoch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ssov_current_epoch",
				Help: "Most recently bootstrapped epoch.",
			}, []string{"vault"}),
			epochDeposits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ssov_epoch_deposits",
				Help: "Total deposits per epoch.",
			}, []string{"vault", "epoch"}),
			compounded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ssov_compounded_rewards_total",
				Help: "Rewards harvested by compounding, by stream.",
			}, []string{"vault", "stream"}),
			roundingDust: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ssov_rounding_dust",
				Help: "Cumulative rounding remainder left in the vault.",
			}, []string{"vault"}),
			settlementSpot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ssov_settlement_price",
				Help: "USD settlement price recorded at expiry.",
			}, []string{"vault", "epoch"}),
		}
		prometheus.MustRegister(
			ssovRegistry.operations,
			ssovRegistry.deposits,
			ssovRegistry.premium,
			ssovRegistry.fees,
			ssovRegistry.settlements,
			ssovRegistry.withdrawals,
			ssovRegistry.currentEpoch,
			ssovRegistry.epochDeposits,
			ssovRegistry.compounded,
			ssovRegistry.roundingDust,
			ssovRegistry.settlementSpot,
		)
	})
	return ssovRegistry
}

func (m *SSOVMetrics) ObserveOperation(vault, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(vault, operation, outcome).Inc()
}

func (m *SSOVMetrics) AddDeposit(vault string, epoch uint64, amount, epochTotal float64) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(vault).Add(amount)
	m.epochDeposits.WithLabelValues(vault, fmt.Sprintf("%d", epoch)).Set(epochTotal)
}

func (m *SSOVMetrics) AddPurchase(vault string, premium, fee float64) {
	if m == nil {
		return
	}
	m.premium.WithLabelValues(vault).Add(premium)
	m.fees.WithLabelValues(vault, "purchase").Add(fee)
}

func (m *SSOVMetrics) AddSettlement(vault string, payout, fee float64) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(vault).Add(payout)
	m.fees.WithLabelValues(vault, "settlement").Add(fee)
}

func (m *SSOVMetrics) AddWithdrawal(vault string, amount float64) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(vault).Add(amount)
}

func (m *SSOVMetrics) AddCompound(vault string, primary, secondary float64) {
	if m == nil {
		return
	}
	m.compounded.WithLabelValues(vault, "primary").Add(primary)
	m.compounded.WithLabelValues(vault, "secondary").Add(secondary)
}

func (m *SSOVMetrics) SetCurrentEpoch(vault string, epoch uint64) {
	if m == nil {
		return
	}
	m.currentEpoch.WithLabelValues(vault).Set(float64(epoch))
}

func (m *SSOVMetrics) ObserveExpiry(vault string, epoch uint64, price, dust float64) {
	if m == nil {
		return
	}
	m.settlementSpot.WithLabelValues(vault, fmt.Sprintf("%d", epoch)).Set(price)
	m.roundingDust.WithLabelValues(vault).Set(dust)
}
