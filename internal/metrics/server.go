package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/edgesite/internal/version"
)

// ServerMetrics instruments the local preview server.
type ServerMetrics struct {
	reg             *prometheus.Registry
	handler         http.Handler
	inflight        prometheus.Gauge
	reqTotal        *prometheus.CounterVec
	reqDur          *prometheus.HistogramVec
	respBytes       *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	httpPanicTotal  prometheus.Counter
	buildInfo       *prometheus.GaugeVec
	manifestInfo    *prometheus.GaugeVec
	manifestFiles   prometheus.Gauge
	manifestBytes   prometheus.Gauge
	profilingActive prometheus.Gauge
}

// NewServer returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func NewServer() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 26214400},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_date", "vcs_dirty", "go_version"}),
		manifestInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "preview_manifest_info",
			Help: "Manifest being served (label carries the digest, value is always 1)",
		}, []string{"sha256"}),
		manifestFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "preview_manifest_files",
			Help: "Number of files in the served manifest",
		}),
		manifestBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "preview_manifest_bytes",
			Help: "Total content bytes in the served manifest",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.manifestInfo,
		m.manifestFiles,
		m.manifestBytes,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// set once at startup.
func (m *ServerMetrics) SetBuildInfo(component string, vi version.Info) {
	setBuildInfo(m.buildInfo, component, vi)
}

func (m *ServerMetrics) SetManifest(digest string, files int, bytes int64) {
	m.manifestInfo.Reset()
	m.manifestInfo.WithLabelValues(digest).Set(1)
	m.manifestFiles.Set(float64(files))
	m.manifestBytes.Set(float64(bytes))
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func setBuildInfo(g *prometheus.GaugeVec, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	g.With(prometheus.Labels{
		"app":         vi.App,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}
