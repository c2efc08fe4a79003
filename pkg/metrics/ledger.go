package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks the size of the ledger, the debt it carries and its
// mutation rate.
type LedgerMetrics struct {
	clients   prometheus.Gauge
	debt      prometheus.Gauge
	mutations *prometheus.CounterVec
	persist   *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_clients",
		Help: "Number of clients in the ledger.",
	})
	debt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_outstanding_debt",
		Help: "Sum of every client's positive debt.",
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Ledger mutations by operation.",
	}, []string{"op"})
	persist := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_persist_total",
		Help: "Ledger snapshot writes by result.",
	}, []string{"result"})
	reg.MustRegister(clients, debt, mutations, persist)
	return &LedgerMetrics{clients: clients, debt: debt, mutations: mutations, persist: persist}
}

// ObserveChange records a mutation with the resulting ledger size and total
// outstanding debt.
func (l *LedgerMetrics) ObserveChange(op string, size int, outstanding float64) {
	if l == nil || l.clients == nil {
		return
	}
	l.clients.Set(float64(size))
	l.debt.Set(outstanding)
	l.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncPersist counts a snapshot write ("ok" or "error").
func (l *LedgerMetrics) IncPersist(result string) {
	if l == nil || l.persist == nil {
		return
	}
	l.persist.WithLabelValues(normalizeLabel(result)).Inc()
}
