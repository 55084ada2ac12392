package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tanbih_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tanbih_dispatch_runs_total", Help: "Dispatch run outcomes"},
		[]string{"status"},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "tanbih_dispatch_run_seconds", Help: "Dispatch run duration"},
	)
	ChannelSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tanbih_channel_send_total", Help: "Channel send outcomes"},
		[]string{"channel", "result"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "tanbih_provider_latency_seconds", Help: "Provider call latency"},
		[]string{"channel"},
	)
	Skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tanbih_skips_total", Help: "Skipped sends"},
		[]string{"reason"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tanbih_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, DispatchRuns, RunDuration, ChannelSend, ProviderLatency, Skips, Enqueues)
}
