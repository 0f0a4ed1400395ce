package worker

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/edgesite/internal/manifest"
)

const (
	CacheControl = "public, max-age=3600"
	FallbackType = "text/html"
	NotFoundType = "text/plain"
)

// Response is what the policy answers for one request path.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Router serves a manifest with the same policy as the generated program.
type Router struct {
	m *manifest.Manifest
}

func NewRouter(m *manifest.Manifest) *Router { return &Router{m: m} }

// Resolve applies the routing policy to an already percent-decoded path.
func (rt *Router) Resolve(p string) Response {
	if p == "/" {
		p = "/" + manifest.IndexPath
	}
	key := strings.TrimPrefix(p, "/")

	if e, ok := rt.m.Lookup(key); ok {
		h := http.Header{}
		h.Set("Content-Type", e.MediaType)
		h.Set("Cache-Control", CacheControl)
		h.Set("Access-Control-Allow-Origin", "*")
		return Response{Status: http.StatusOK, Header: h, Body: e.Content}
	}

	if idx, ok := rt.m.Lookup(manifest.IndexPath); ok && !strings.Contains(key, ".") {
		h := http.Header{}
		h.Set("Content-Type", FallbackType)
		h.Set("Cache-Control", CacheControl)
		return Response{Status: http.StatusOK, Header: h, Body: idx.Content}
	}

	h := http.Header{}
	h.Set("Content-Type", NotFoundType)
	return Response{Status: http.StatusNotFound, Header: h, Body: []byte("Not found: " + p)}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := rt.Resolve(r.URL.Path)
	for k, vs := range res.Header {
		w.Header()[k] = vs
	}
	w.WriteHeader(res.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(res.Body)
	}
}
