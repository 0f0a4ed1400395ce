package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/edgesite/internal/health"
	"github.com/keithlinneman/edgesite/internal/httpmw"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const (
	HealthPath  = "/-/healthy"
	ReadyPath   = "/-/ready"
	MetricsPath = "/-/metrics"
)

// NewHandler builds the preview handler: ops endpoints under /-/ and the
// site for everything else. The caller owns the *http.Server.
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()

	// Compress text responses (HTML/CSS/JS/JSON/SVG)
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"text/plain",
		"application/javascript",
		"application/json",
		"image/svg+xml",
	))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog(HealthPath, ReadyPath, MetricsPath))

	r.Get(HealthPath, health.HealthzHandler(opts.Health))
	r.Get(ReadyPath, health.ReadyzHandler(opts.Readiness))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, MetricsPath, opts.Metrics)
	}

	if opts.Routes != nil {
		opts.Routes(r)
	}
	if opts.Site != nil {
		r.Handle("/*", opts.Site)
	}

	var manifestMW func(http.Handler) http.Handler
	if opts.Manifest != nil {
		manifestMW = httpmw.ManifestHeaders(opts.Manifest)
	}

	// outermost first; trace headers and metrics exemplars need the span
	h := httpmw.Chain(r,
		httpmw.RequestID(httpmw.DefaultRequestIDHeader),
		manifestMW,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(L),
	)

	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// probes and scrapes are not traced
			return !strings.HasPrefix(r.URL.Path, "/-/")
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern later
			return r.Method + " " + r.URL.Path
		}),
	)

	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	return h
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
	shutdownTimeout          = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens before returning so a port conflict is reported to the
// caller. It returns the bound address and stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts *Options) (string, func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return "", nil, xerrors.Wrapf(err, "listen on %s", addr)
	}
	bound := ln.Addr().String()

	go func() {
		L.Info(ctx, "preview server listening", "addr", bound)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "preview server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "preview server shutting down")
			c, cancel := context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return bound, stop, nil
}
