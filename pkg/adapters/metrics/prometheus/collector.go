package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	nodeAttempts *prometheus.CounterVec
	nodeRetries  *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec

	invocations *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a collector registered with the default registry
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer)
}

// NewCollectorWith creates a collector registered with reg
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"workflow"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_runs_completed_total",
				Help: "Total number of runs that reached a terminal status",
			},
			[]string{"workflow", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgen_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"workflow"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgen_active_runs",
				Help: "Number of currently active runs",
			},
		),
		nodeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_node_attempts_total",
				Help: "Total number of node attempts by outcome",
			},
			[]string{"workflow", "node", "outcome"},
		),
		nodeRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_node_retries_total",
				Help: "Total number of scheduled node retries",
			},
			[]string{"workflow", "node", "class"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgen_node_duration_seconds",
				Help:    "Node attempt duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow", "node"},
		),
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_invocations_total",
				Help: "Total number of tool/model invocations",
			},
			[]string{"tool", "model", "outcome"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgen_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgen_llm_latency_seconds",
				Help:    "Invocation latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"tool", "model"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgen_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgen_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgen_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(workflow string) {
	c.runsSubmitted.WithLabelValues(workflow).Inc()
}

// RecordRunCompleted records a run reaching a terminal status
func (c *Collector) RecordRunCompleted(workflow, status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(workflow, status).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// SetActiveRuns sets the number of currently active runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// RecordNodeAttempt records the outcome of a node attempt
func (c *Collector) RecordNodeAttempt(workflow, node, outcome string, duration time.Duration) {
	c.nodeAttempts.WithLabelValues(workflow, node, outcome).Inc()
	c.nodeDuration.WithLabelValues(workflow, node).Observe(duration.Seconds())
}

// RecordNodeRetry records a scheduled retry
func (c *Collector) RecordNodeRetry(workflow, node, class string) {
	c.nodeRetries.WithLabelValues(workflow, node, class).Inc()
}

// RecordInvocation records a tool/model call
func (c *Collector) RecordInvocation(tool, model, outcome string, latency time.Duration) {
	c.invocations.WithLabelValues(tool, model, outcome).Inc()
	c.llmLatency.WithLabelValues(tool, model).Observe(latency.Seconds())
}

// RecordTokens adds to the token counter
func (c *Collector) RecordTokens(model, tokenType string, count int) {
	if count <= 0 {
		return
	}
	c.llmTokens.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
