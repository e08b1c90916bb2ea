package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	PodsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_pods_total",
			Help: "Total number of pods by status",
		},
		[]string{"status"},
	)

	CPUCores = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_cpu_cores",
			Help: "CPU cores across non-failed nodes by kind (total, available)",
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_scheduling_latency_seconds",
			Help:    "Time taken to place a pod in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	PodsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_pods_scheduled_total",
			Help: "Total number of successful pod placements",
		},
	)

	PodsUnschedulable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_pods_unschedulable_total",
			Help: "Total number of placement attempts that found no fitting node",
		},
	)

	// Failure detection metrics
	NodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_node_failures_total",
			Help: "Total number of nodes declared failed by the heartbeat sweep",
		},
	)

	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_heartbeats_total",
			Help: "Total number of accepted node heartbeats",
		},
	)

	ProbeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_probe_results_total",
			Help: "Total number of runtime probe results by outcome",
		},
		[]string{"result"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_failure_sweep_duration_seconds",
			Help:    "Time taken by one failure detection sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rescheduling metrics
	ReschedulePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_reschedule_passes_total",
			Help: "Total number of reschedule passes by trigger and result (ran, dropped)",
		},
		[]string{"trigger", "result"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(PodsTotal)
	prometheus.MustRegister(CPUCores)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(PodsScheduled)
	prometheus.MustRegister(PodsUnschedulable)
	prometheus.MustRegister(NodeFailures)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(ProbeResults)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(ReschedulePasses)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
