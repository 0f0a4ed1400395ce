package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/edgesite/internal/health"
	"github.com/keithlinneman/edgesite/internal/httpmw"
	"github.com/keithlinneman/edgesite/internal/log"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8787
)

type Options struct {
	Logger log.Logger
	// Host defaults to loopback; the preview is not meant to be exposed
	Host string
	Port int

	// Routes registers extra endpoints before the site catch-all
	Routes func(r chi.Router)

	// Site answers every path not claimed by the /-/ endpoints
	Site http.Handler

	// Metrics is mounted at /-/metrics when set
	Metrics   http.Handler
	MetricsMW func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// Manifest adds X-Edgesite-Manifest headers when set
	Manifest httpmw.ManifestInfo

	UseRecoverMW bool
	OnPanic      func()
}
