package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/keithlinneman/edgesite/internal/version"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// PushJob is the Pushgateway job name CLI runs report under.
const PushJob = "edgesite"

// Deploy collects what one CLI invocation did. It is short-lived, so it is
// pushed to a Pushgateway instead of scraped.
type Deploy struct {
	reg           *prometheus.Registry
	apiCalls      *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	apiStatus     *prometheus.CounterVec
	steps         *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
	manifestFiles prometheus.Gauge
	manifestBytes prometheus.Gauge
	buildInfo     *prometheus.GaugeVec
}

func NewDeploy() *Deploy {
	reg := prometheus.NewRegistry()
	d := &Deploy{
		reg: reg,
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgesite_api_calls_total",
			Help: "Edge platform API calls by operation and outcome",
		}, []string{"op", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgesite_api_call_duration_seconds",
			Help:    "Edge platform API call latency by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		apiStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgesite_api_responses_total",
			Help: "Edge platform API responses by HTTP status (0 when no response arrived)",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgesite_provision_steps_total",
			Help: "Provisioning step outcomes",
		}, []string{"step", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgesite_operation_duration_seconds",
			Help:    "Wall time of deploy, teardown and list by result",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgesite_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful operation",
		}, []string{"operation"}),
		manifestFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgesite_manifest_files",
			Help: "Files in the last built manifest",
		}),
		manifestBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgesite_manifest_bytes",
			Help: "Content bytes in the last built manifest",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_date", "vcs_dirty", "go_version"}),
	}
	reg.MustRegister(
		d.apiCalls,
		d.apiDuration,
		d.apiStatus,
		d.steps,
		d.opDuration,
		d.lastSuccess,
		d.manifestFiles,
		d.manifestBytes,
		d.buildInfo,
	)
	setBuildInfo(d.buildInfo, "cli", version.Get())
	return d
}

func (d *Deploy) Registry() *prometheus.Registry { return d.reg }

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveCall satisfies cloudflare.Observer.
func (d *Deploy) ObserveCall(op string, status int, success bool, dur time.Duration) {
	d.apiCalls.WithLabelValues(op, outcome(success)).Inc()
	d.apiDuration.WithLabelValues(op).Observe(dur.Seconds())
	d.apiStatus.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (d *Deploy) ObserveStep(step, result string) {
	d.steps.WithLabelValues(step, result).Inc()
}

func (d *Deploy) ObserveOperation(operation string, success bool, dur time.Duration) {
	d.opDuration.WithLabelValues(operation, outcome(success)).Observe(dur.Seconds())
	if success {
		d.lastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

func (d *Deploy) SetManifest(files int, bytes int64) {
	d.manifestFiles.Set(float64(files))
	d.manifestBytes.Set(float64(bytes))
}

// Push replaces this job's group on the Pushgateway at url. grouping adds
// labels such as the site name so parallel sites do not overwrite each other.
func (d *Deploy) Push(ctx context.Context, url string, grouping map[string]string, hc *http.Client) error {
	p := push.New(url, PushJob).Gatherer(d.reg)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if hc != nil {
		p = p.Client(hc)
	}
	if err := p.PushContext(ctx); err != nil {
		return xerrors.Wrapf(err, "push metrics to %s", url)
	}
	return nil
}
