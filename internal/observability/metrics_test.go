package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsWritePrometheus(t *testing.T) {
	m := NewMetrics()
	m.IncEntityWrite("acme", "Contact", "create")
	m.IncEventAppended("acme", "Contact")
	m.IncVerbExecuted("acme", "Deal", "close", "success")
	m.ObserveDispatch("acme", "webhook", "success", 0.012)
	m.SetCDCBacklog("acme", 3)
	m.ObserveAggregateOperation("entity.create", "success", 0.004)
	m.IncAggregateConflict("entity.update")
	m.IncAggregateRetry("entity.update")

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	out := buf.String()
	require.Contains(t, out, "kernel_entity_writes_total")
	require.Contains(t, out, "kernel_dispatch_duration_seconds")
	require.Contains(t, out, "kernel_cdc_subscriber_backlog")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.IncEntityWrite("t", "T", "create")
		m.ObserveDispatch("t", "webhook", "error", 0.1)
		_ = m.WritePrometheus(&bytes.Buffer{})
	})
}
