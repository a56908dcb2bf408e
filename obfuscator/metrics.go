package obfuscator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 运行结果的指标，注册在独立的 registry 上
type Metrics struct {
	registry    *prometheus.Registry
	decisions   *prometheus.CounterVec
	literals    *prometheus.CounterVec
	blobBytes   *prometheus.GaugeVec
	diagnostics *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obfuscator_decisions_total",
			Help: "Ledger decisions by symbol kind and final status.",
		}, []string{"kind", "status"}),
		literals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obfuscator_literals_hidden_total",
			Help: "Distinct string literals moved into a module's data blob.",
		}, []string{"module"}),
		blobBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "obfuscator_literal_blob_bytes",
			Help: "Size of a module's masked literal blob.",
		}, []string{"module"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obfuscator_diagnostics_total",
			Help: "Non-fatal diagnostics by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.decisions, m.literals, m.blobBytes, m.diagnostics)
	return m
}

// Registry 返回指标所在的 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record 从账本与诊断中累计一次运行的指标
func (m *Metrics) Record(o *Obfuscator) {
	for _, e := range o.Mapping.Entries() {
		m.decisions.WithLabelValues(e.Kind.String(), e.Record.Status.String()).Inc()
	}
	for _, h := range o.hidden {
		m.literals.WithLabelValues(h.Module).Add(float64(len(h.Slots)))
		m.blobBytes.WithLabelValues(h.Module).Set(float64(len(h.Data)))
	}
	for _, d := range o.diagnostics {
		m.diagnostics.WithLabelValues(d.Kind.String()).Inc()
	}
}
