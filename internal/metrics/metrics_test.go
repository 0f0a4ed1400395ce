package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/edgesite/internal/version"
)

// gatherMetric collects metrics from the registry and finds one by name.
func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// counterValue sums every series of a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	var sum float64
	for _, m := range f.GetMetric() {
		sum += m.GetCounter().GetValue()
	}
	return sum
}

// histogramCount returns the sample count of the first metric in a histogram family.
func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil || len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0].GetHistogram().GetSampleCount()
}

func seriesWith(f *dto.MetricFamily, labels map[string]string) *dto.Metric {
	for _, m := range f.GetMetric() {
		match := 0
		for _, lp := range m.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				match++
			}
		}
		if match == len(labels) {
			return m
		}
	}
	return nil
}

func TestNewServer_Scrape(t *testing.T) {
	m := NewServer()
	m.SetBuildInfo("preview", version.Get())
	m.SetManifest("abc123", 4, 2048)
	m.SetProfilingActive(true)
	m.IncHttpPanic()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"go_goroutines",
		"http_inflight_requests",
		"http_panic_total 1",
		`preview_manifest_info{sha256="abc123"} 1`,
		"preview_manifest_files 4",
		"preview_manifest_bytes 2048",
		"profiling_active 1",
		`component="preview"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestSetManifest_ReplacesDigest(t *testing.T) {
	m := NewServer()
	m.SetManifest("old", 1, 1)
	m.SetManifest("new", 2, 2)
	f := gatherMetric(t, m.reg, "preview_manifest_info")
	if len(f.GetMetric()) != 1 || seriesWith(f, map[string]string{"sha256": "new"}) == nil {
		t.Fatalf("manifest info series = %v", f.GetMetric())
	}
}

func TestBuildInfo_VCSDirty(t *testing.T) {
	dirty := true
	for _, tt := range []struct {
		in   *bool
		want string
	}{{nil, "unknown"}, {&dirty, "true"}} {
		m := NewServer()
		m.SetBuildInfo("preview", version.Info{App: "edgesite", Version: "1.0.0", VCSDirty: tt.in})
		f := gatherMetric(t, m.reg, "build_info")
		if seriesWith(f, map[string]string{"vcs_dirty": tt.want, "app": "edgesite", "version": "1.0.0"}) == nil {
			t.Errorf("vcs_dirty %q series missing", tt.want)
		}
	}
}

func TestNewServer_IsolatedRegistries(t *testing.T) {
	a, b := NewServer(), NewServer()
	a.IncHttpPanic()
	if got := counterValue(t, b.reg, "http_panic_total"); got != 0 {
		t.Fatalf("registries share state: %f", got)
	}
}

func TestDeploy_Observations(t *testing.T) {
	d := NewDeploy()
	d.ObserveCall("upload_script", 200, true, 120*time.Millisecond)
	d.ObserveCall("create_route", 409, false, 80*time.Millisecond)
	d.ObserveCall("purge_cache", 0, false, time.Millisecond)
	d.ObserveStep("dns", "already-satisfied")
	d.ObserveStep("upload", "applied")
	d.ObserveOperation("deploy", true, 2*time.Second)
	d.ObserveOperation("teardown", false, time.Second)
	d.SetManifest(7, 4096)

	calls := gatherMetric(t, d.Registry(), "edgesite_api_calls_total")
	if s := seriesWith(calls, map[string]string{"op": "create_route", "outcome": "failure"}); s == nil || s.GetCounter().GetValue() != 1 {
		t.Fatalf("create_route failure series = %v", s)
	}
	if got := counterValue(t, d.Registry(), "edgesite_api_calls_total"); got != 3 {
		t.Fatalf("api calls = %f", got)
	}
	status := gatherMetric(t, d.Registry(), "edgesite_api_responses_total")
	if seriesWith(status, map[string]string{"status": "0"}) == nil {
		t.Fatal("missing status=0 series for transport failure")
	}
	steps := gatherMetric(t, d.Registry(), "edgesite_provision_steps_total")
	if seriesWith(steps, map[string]string{"step": "dns", "outcome": "already-satisfied"}) == nil {
		t.Fatal("missing step series")
	}
	last := gatherMetric(t, d.Registry(), "edgesite_last_success_timestamp_seconds")
	if len(last.GetMetric()) != 1 || seriesWith(last, map[string]string{"operation": "deploy"}) == nil {
		t.Fatalf("last success series = %v", last.GetMetric())
	}
	if v := gatherMetric(t, d.Registry(), "edgesite_manifest_files").GetMetric()[0].GetGauge().GetValue(); v != 7 {
		t.Fatalf("manifest files = %f", v)
	}
	if gatherMetric(t, d.Registry(), "build_info") == nil {
		t.Fatal("build_info missing")
	}
}

func TestDeploy_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeploy()
	d.ObserveStep("upload", "applied")
	if err := d.Push(context.Background(), srv.URL, map[string]string{"site": "docs"}, nil); err != nil {
		t.Fatalf("Push: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/edgesite/site/docs" {
		t.Errorf("path = %s", path)
	}
	if !strings.Contains(body, "edgesite_provision_steps_total") {
		t.Errorf("pushed body missing step metric")
	}
}

func TestDeploy_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()
	if err := NewDeploy().Push(context.Background(), srv.URL, nil, srv.Client()); err == nil {
		t.Fatal("expected error from failing pushgateway")
	}
}
