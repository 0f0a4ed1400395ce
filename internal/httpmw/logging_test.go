package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/edgesite/internal/log"
)

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec}

	rw.Write([]byte("hello "))
	rw.WriteHeader(http.StatusTeapot)
	rw.Write([]byte("world"))
	rw.Flush()

	if rw.status != http.StatusOK {
		t.Fatalf("status = %d, want implicit 200 from first Write", rw.status)
	}
	if rw.bytes != 11 {
		t.Fatalf("bytes = %d, want 11", rw.bytes)
	}
	if !rec.Flushed {
		t.Fatal("Flush not forwarded")
	}
	if rw.Unwrap() != rec {
		t.Fatal("Unwrap does not return the underlying writer")
	}
}

func TestWithLogger(t *testing.T) {
	spy := newSpyLogger()
	var got log.Logger
	h := RequestID("")(WithLogger(spy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = log.FromContext(r.Context())
		got.Info(r.Context(), "inside")
	})))

	req := httptest.NewRequest(http.MethodGet, "/docs/?q=secret", http.NoBody)
	req.RemoteAddr = "192.0.2.7:51234"
	req.Header.Set("X-Request-Id", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := spy.all()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	f := entries[0].fields
	for key, want := range map[string]string{
		"request_id":           "req-1",
		"network.peer.address": "192.0.2.7",
		"http.request.method":  "GET",
		"url.path":             "/docs/",
	} {
		if v, _ := field(f, key); v != want {
			t.Errorf("%s = %v, want %s", key, v, want)
		}
	}
	for i := 1; i < len(f); i += 2 {
		if s, ok := f[i].(string); ok && s == "q=secret" {
			t.Fatal("query string leaked into log fields")
		}
	}
}

func TestAccessLog(t *testing.T) {
	spy := newSpyLogger()

	r := chi.NewRouter()
	r.Use(AccessLog("/-/healthy"))
	r.Get("/posts/{slug}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("abc"))
	})
	r.Get("/-/healthy", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/empty", func(w http.ResponseWriter, r *http.Request) {})
	h := WithLogger(spy)(r)

	for _, p := range []string{"/posts/hello", "/-/healthy", "/empty"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, http.NoBody))
	}

	entries := spy.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (health skipped)", len(entries))
	}

	first := entries[0]
	if first.msg != "http request" {
		t.Fatalf("msg = %q", first.msg)
	}
	if v, _ := field(first.fields, "http.response.status_code"); v != http.StatusCreated {
		t.Errorf("status = %v", v)
	}
	if v, _ := field(first.fields, "http.response.body.size"); v != int64(3) {
		t.Errorf("size = %v", v)
	}
	if v, _ := field(first.fields, "http.route"); v != "/posts/{slug}" {
		t.Errorf("route = %v", v)
	}
	if _, ok := field(first.fields, "http.server.request.duration"); !ok {
		t.Error("duration missing")
	}

	if v, _ := field(entries[1].fields, "http.response.status_code"); v != http.StatusOK {
		t.Errorf("implicit status = %v, want 200", v)
	}
}

func TestAccessLog_NoLoggerInContext(t *testing.T) {
	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRoutePattern_FallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/raw/path", http.NoBody)
	if got := routePattern(req); got != "/raw/path" {
		t.Fatalf("routePattern = %q", got)
	}
}
