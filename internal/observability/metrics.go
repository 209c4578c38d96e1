// Package observability holds the kernel's hand-rolled metrics
// registry. No external metrics client is introduced: counters,
// gauges, and histograms are tiny self-contained types that know how
// to render themselves in Prometheus exposition format, the same shape
// the teacher's own internal/observability package uses.
package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Metrics is the registry a tenant kernel manager shares across every
// tenant kernel it constructs. One instance per process.
type Metrics struct {
	aggregateOps       *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	entityWrites  *CounterVec
	eventsAppend  *CounterVec
	verbExecuted  *CounterVec
	dispatchTotal *CounterVec
	dispatchLag   *HistogramVec
	cdcBacklog    *GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		aggregateOps:       NewHistogramVec("kernel_aggregate_op_duration_seconds", "aggregate write duration by op and status", []string{"op", "status"}, nil),
		aggregateConflicts: NewCounterVec("kernel_aggregate_conflicts_total", "optimistic concurrency conflicts by op", []string{"op"}),
		aggregateRetries:   NewCounterVec("kernel_aggregate_retries_total", "retryable aggregate failures by op", []string{"op"}),
		entityWrites:       NewCounterVec("kernel_entity_writes_total", "entity mutations by tenant, type, op", []string{"tenant", "type", "op"}),
		eventsAppend:       NewCounterVec("kernel_events_appended_total", "events appended by tenant and entity type", []string{"tenant", "entity_type"}),
		verbExecuted:       NewCounterVec("kernel_verb_executions_total", "verb executions by tenant, noun, verb, status", []string{"tenant", "noun", "verb", "status"}),
		dispatchTotal:      NewCounterVec("kernel_dispatch_total", "fan-out dispatch attempts by tenant, channel, status", []string{"tenant", "channel", "status"}),
		dispatchLag:        NewHistogramVec("kernel_dispatch_duration_seconds", "fan-out dispatch elapsed time by channel", []string{"channel"}, nil),
		cdcBacklog:         NewGaugeVec("kernel_cdc_subscriber_backlog", "buffered events per CDC subscriber", []string{"tenant"}),
	}
}

func (m *Metrics) ObserveAggregateOperation(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(seconds, op, status)
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(op)
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(op)
}

func (m *Metrics) IncEntityWrite(tenant, entityType, op string) {
	if m == nil {
		return
	}
	m.entityWrites.Inc(tenant, entityType, op)
}

func (m *Metrics) IncEventAppended(tenant, entityType string) {
	if m == nil {
		return
	}
	m.eventsAppend.Inc(tenant, entityType)
}

func (m *Metrics) IncVerbExecuted(tenant, noun, verb, status string) {
	if m == nil {
		return
	}
	m.verbExecuted.Inc(tenant, noun, verb, status)
}

func (m *Metrics) ObserveDispatch(tenant, channel, status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.Inc(tenant, channel, status)
	m.dispatchLag.Observe(seconds, channel)
}

func (m *Metrics) SetCDCBacklog(tenant string, n float64) {
	if m == nil {
		return
	}
	m.cdcBacklog.Set(n, tenant)
}

// WritePrometheus renders every registered metric in the Prometheus
// text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []func(io.Writer) error{
		m.aggregateOps.WritePrometheus,
		m.aggregateConflicts.WritePrometheus,
		m.aggregateRetries.WritePrometheus,
		m.entityWrites.WritePrometheus,
		m.eventsAppend.WritePrometheus,
		m.verbExecuted.WritePrometheus,
		m.dispatchTotal.WritePrometheus,
		m.dispatchLag.WritePrometheus,
		m.cdcBacklog.WritePrometheus,
	}
	for _, wr := range writers {
		if err := wr(w); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{buckets: h.buckets, counts: make([]uint64, len(h.buckets)+1)}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}
