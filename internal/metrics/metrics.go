// Package metrics wires the daemon's Prometheus instrumentation.
// Grounded on marmos91-dittofs's internal/adapter/nlm.Metrics
// (NewMetrics(reg prometheus.Registerer), nil-receiver no-op methods),
// generalized from NLM's lock/callback counters to the FTP control and
// transfer paths duskftpd exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every gauge/counter/histogram duskftpd registers. A nil
// *Metrics is a valid no-op collector — every method tolerates a nil
// receiver so callers never need a feature flag to skip instrumentation.
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	ActiveSessions     prometheus.Gauge
	CommandsTotal      *prometheus.CounterVec
	AuthFailuresTotal  prometheus.Counter
	TransfersTotal     *prometheus.CounterVec
	TransferBytesTotal *prometheus.CounterVec
	TransferDuration   *prometheus.HistogramVec
	CreditDebitTotal   *prometheus.CounterVec
	CreditCreditTotal  *prometheus.CounterVec
	SiteCommandsTotal  *prometheus.CounterVec
}

// New creates duskftpd's metrics set and registers every collector on
// reg. Panics on a registration collision, which only happens if New is
// called twice against the same registerer — a programming error caught
// at startup.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskftpd_connections_total",
			Help: "Total control connections accepted.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duskftpd_active_sessions",
			Help: "Control connections currently open.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_commands_total",
			Help: "Commands processed, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duskftpd_auth_failures_total",
			Help: "Failed PASS attempts.",
		}),
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_transfers_total",
			Help: "Completed transfers, by direction and outcome.",
		}, []string{"direction", "outcome"}),
		TransferBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_transfer_bytes_total",
			Help: "Bytes transferred, by direction.",
		}, []string{"direction"}),
		TransferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duskftpd_transfer_duration_seconds",
			Help:    "Transfer duration in seconds, by direction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),
		CreditDebitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_credit_debit_kb_total",
			Help: "Kilobytes debited, by section.",
		}, []string{"section"}),
		CreditCreditTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_credit_credit_kb_total",
			Help: "Kilobytes credited, by section.",
		}, []string{"section"}),
		SiteCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskftpd_site_commands_total",
			Help: "SITE subcommands invoked, by name and outcome.",
		}, []string{"subcommand", "outcome"}),
	}
	reg.MustRegister(
		m.ConnectionsTotal, m.ActiveSessions, m.CommandsTotal, m.AuthFailuresTotal,
		m.TransfersTotal, m.TransferBytesTotal, m.TransferDuration,
		m.CreditDebitTotal, m.CreditCreditTotal, m.SiteCommandsTotal,
	)
	return m
}

func (m *Metrics) RecordCommand(verb, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(verb, outcome).Inc()
}

func (m *Metrics) RecordAuthFailure() {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.Inc()
}

func (m *Metrics) RecordTransfer(direction, outcome string, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(direction, outcome).Inc()
	m.TransferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	m.TransferDuration.WithLabelValues(direction).Observe(seconds)
}

func (m *Metrics) RecordCredit(section string, debitKB, creditKB int64) {
	if m == nil {
		return
	}
	if debitKB > 0 {
		m.CreditDebitTotal.WithLabelValues(section).Add(float64(debitKB))
	}
	if creditKB > 0 {
		m.CreditCreditTotal.WithLabelValues(section).Add(float64(creditKB))
	}
}

func (m *Metrics) RecordSiteCommand(subcommand, outcome string) {
	if m == nil {
		return
	}
	m.SiteCommandsTotal.WithLabelValues(subcommand, outcome).Inc()
}
