package wallet

// Metrics (ambient stack). Grounded on the teacher's
// core/system_health_logging.go HealthLogger: a private prometheus registry
// holding a handful of gauges/counters, constructed once and updated from
// the relevant call sites.

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the wallet engine's prometheus instrumentation. It is
// optional: a Wallet functions without one wired in.
type Metrics struct {
	registry *prometheus.Registry

	addressesDerived  prometheus.Counter
	txsProcessed      prometheus.Counter
	txsVoided         prometheus.Counter
	utxoCount         prometheus.Gauge
	syncDegradedTotal prometheus.Counter
	stateGauge        prometheus.Gauge
}

// NewMetrics builds a Metrics instance with its own registry, so a process
// hosting more than one wallet can register each under a distinct path.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		addressesDerived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hathor_wallet_addresses_derived_total",
			Help: "Total number of addresses derived by the scan policy.",
		}),
		txsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hathor_wallet_transactions_processed_total",
			Help: "Total number of transactions folded into history.",
		}),
		txsVoided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hathor_wallet_transactions_voided_total",
			Help: "Total number of transactions voided, including cascades.",
		}),
		utxoCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hathor_wallet_utxo_count",
			Help: "Current number of unspent outputs owned by the wallet.",
		}),
		syncDegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hathor_wallet_sync_degraded_total",
			Help: "Total number of times sync fell back from streaming to poll-http.",
		}),
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hathor_wallet_state",
			Help: "Current facade lifecycle state, as its numeric State value.",
		}),
	}
	reg.MustRegister(m.addressesDerived, m.txsProcessed, m.txsVoided, m.utxoCount, m.syncDegradedTotal, m.stateGauge)
	return m
}

// Registry returns the prometheus registry so a caller can serve it over
// its own HTTP mux (e.g. via promhttp.HandlerFor).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeEvent(ev Event) {
	if ev.Tx != nil {
		if ev.Tx.IsVoided {
			m.txsVoided.Inc()
		} else {
			m.txsProcessed.Inc()
		}
	}
	if len(ev.Addr) > 0 {
		m.addressesDerived.Add(float64(len(ev.Addr)))
	}
	m.stateGauge.Set(float64(ev.State))
}

func (m *Metrics) observeSync(ev SyncEvent) {
	if ev.Kind == EventTransportDegraded {
		m.syncDegradedTotal.Inc()
	}
}

// SetUtxoCount refreshes the gauge tracking the wallet's live utxo count.
func (m *Metrics) SetUtxoCount(n int) { m.utxoCount.Set(float64(n)) }
