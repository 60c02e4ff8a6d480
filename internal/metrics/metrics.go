package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchvoice_calls_triggered_total",
		Help: "Calls triggered, labeled by transport.",
	}, []string{"transport"})

	CallsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchvoice_calls_finalized_total",
		Help: "Calls finalized, labeled by terminal state.",
	}, []string{"state"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchvoice_active_sessions",
		Help: "Sessions not yet in a terminal state.",
	})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatchvoice_call_duration_seconds",
		Help:    "Active duration of finished calls.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})

	PipelineFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchvoice_pipeline_frames_total",
		Help: "Frames emitted per pipeline stage.",
	}, []string{"stage", "kind"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchvoice_provider_errors_total",
		Help: "Errors from upstream providers.",
	}, []string{"provider"})

	CallCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchvoice_call_cost_usd_total",
		Help: "Estimated call cost in USD, labeled by component.",
	}, []string{"component"})
)
