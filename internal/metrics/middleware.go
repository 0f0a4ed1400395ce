package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// countingWriter records the status and body size the site handler wrote.
type countingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *countingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *countingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *countingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *countingWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records request count, latency and response size labelled by
// method and chi route pattern, never by raw path. It must run outside the
// router so the pattern is complete when next returns.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = withRouteContext(r)

		m.inflight.Inc()
		defer m.inflight.Dec()

		cw := &countingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		m.observe(r, cw, time.Since(start))
	})
}

// withRouteContext installs an empty chi context so the router fills in the
// one this middleware reads afterwards.
func withRouteContext(r *http.Request) *http.Request {
	if chi.RouteContext(r.Context()) != nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
}

func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (m *ServerMetrics) observe(r *http.Request, cw *countingWriter, dur time.Duration) {
	ctx := r.Context()
	route := routeLabel(ctx)
	code := cw.code()

	m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(r.Method, route).Inc()
	}

	obs := m.reqDur.WithLabelValues(r.Method, route)
	eo, canExemplar := obs.(prometheus.ExemplarObserver)
	if ex := traceExemplar(ctx); ex != nil && canExemplar {
		eo.ObserveWithExemplar(dur.Seconds(), ex)
	} else {
		obs.Observe(dur.Seconds())
	}

	m.respBytes.WithLabelValues(r.Method, route).Observe(float64(cw.bytes))
}

// traceExemplar links a latency sample to its trace when the request was sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
