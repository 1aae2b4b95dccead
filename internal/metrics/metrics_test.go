package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m.ConnectionsTotal)

	// Gather omits a labelled collector until it has a child, so touch
	// each one once.
	m.RecordCommand("NOOP", "ok")
	m.RecordTransfer("upload", "ok", 1, 0.1)
	m.RecordCredit("default", 1, 1)
	m.RecordSiteCommand("who", "ok")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 10)
}

func TestRecordTransferUpdatesCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTransfer("download", "ok", 1024, 0.5)

	require.Equal(t, float64(1024), testutil.ToFloat64(m.TransferBytesTotal.WithLabelValues("download")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TransfersTotal.WithLabelValues("download", "ok")))
}

func TestRecordCreditSkipsZeroAmounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCredit("default", 0, 0)

	require.Equal(t, float64(0), testutil.ToFloat64(m.CreditDebitTotal.WithLabelValues("default")))
}

func TestNilMetricsRecordingIsANoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordCommand("NOOP", "ok")
		m.RecordAuthFailure()
		m.RecordTransfer("upload", "ok", 10, 0.1)
		m.RecordCredit("default", 1, 1)
		m.RecordSiteCommand("who", "ok")
	})
}
