package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globenotes_requests_total",
		Help: "Total number of API requests",
	})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globenotes_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_country_resolve_total",
		Help: "Country token resolutions by outcome",
	}, []string{"outcome"})
	DatasetLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_country_dataset_loads_total",
		Help: "Country dataset load attempts by status",
	}, []string{"status"})
	NoteFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_note_fetch_total",
		Help: "Note markdown fetches by status (lru, redis, http, error)",
	}, []string{"status"})
	NotesScannedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globenotes_notes_scanned_total",
		Help: "Notes scanned for entity references",
	})
	FocusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_focus_total",
		Help: "Camera focus decisions by mode",
	}, []string{"mode"})
	CameraFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globenotes_camera_fallback_total",
		Help: "Fit-to-bounds failures converted to center+zoom",
	})
	LayerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_layer_errors_total",
		Help: "Swallowed map layer operation failures by op",
	}, []string{"op"})
	ConstellationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globenotes_constellation_total",
		Help: "Entity constellation requests by resulting state",
	}, []string{"state"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globenotes_sessions_active",
		Help: "Map sessions held in the session cache",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ResolveTotal)
	prometheus.MustRegister(DatasetLoadsTotal)
	prometheus.MustRegister(NoteFetchTotal)
	prometheus.MustRegister(NotesScannedTotal)
	prometheus.MustRegister(FocusTotal)
	prometheus.MustRegister(CameraFallbackTotal)
	prometheus.MustRegister(LayerErrorsTotal)
	prometheus.MustRegister(ConstellationTotal)
	prometheus.MustRegister(SessionsActive)
}

// 文档注释：返回 Prometheus 指标监听器，在主入口挂载到 API_BASE/metrics
func Handler() http.Handler { return promhttp.Handler() }
