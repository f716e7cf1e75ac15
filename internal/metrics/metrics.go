package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestration metrics
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_publish_total",
			Help: "Total number of publish calls by result",
		},
		[]string{"result"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lighthouse_publish_duration_seconds",
			Help:    "Time taken to publish a resource in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ImageBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_image_builds_total",
			Help: "Total number of image builds by result",
		},
		[]string{"result"},
	)

	PortsAllocated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lighthouse_ports_allocated_total",
			Help: "Total number of host ports handed out",
		},
	)

	ContainerRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lighthouse_container_records",
			Help: "Number of live container records",
		},
	)

	// Engine metrics
	EngineCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_engine_calls_total",
			Help: "Total number of container engine calls by operation and result",
		},
		[]string{"op", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(ImageBuildsTotal)
	prometheus.MustRegister(PortsAllocated)
	prometheus.MustRegister(ContainerRecords)
	prometheus.MustRegister(EngineCallsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Result converts an error into the "ok"/"error" result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
