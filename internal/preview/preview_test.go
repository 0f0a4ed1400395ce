package preview

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/worker"
)

func mustManifest(t *testing.T, body string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New(manifest.FileEntry{RelativePath: "index.html", Content: []byte(body), MediaType: "text/html"})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSite_BeforeLoad(t *testing.T) {
	s := NewSite()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if s.Check(context.Background()) == nil {
		t.Fatal("unloaded site reported ready")
	}
	if s.ManifestDigest() != "" || s.ManifestFiles() != 0 || s.Manifest() != nil || !s.LoadedAt().IsZero() {
		t.Fatal("unloaded site reports a manifest")
	}
}

func TestSite_SetAndServe(t *testing.T) {
	s := NewSite()
	m := mustManifest(t, "v1")
	s.Set(m)

	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if s.ManifestDigest() != m.Digest() || s.ManifestFiles() != 1 || s.Manifest() != m {
		t.Fatal("manifest info does not match")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Body.String() != "v1" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	s.Set(mustManifest(t, "v2"))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Body.String() != "v2" {
		t.Fatalf("body after swap = %q", rec.Body.String())
	}
}

type fakeSource struct {
	m   *manifest.Manifest
	err error
}

func (f *fakeSource) Load(context.Context) (*manifest.Manifest, error) { return f.m, f.err }

func TestWatcher_CheckOnce(t *testing.T) {
	site := NewSite()
	site.Set(mustManifest(t, "v1"))
	src := &fakeSource{m: mustManifest(t, "v1")}

	var swapped []*manifest.Manifest
	w := NewWatcher(WatcherOptions{
		Logger: log.Nop(),
		Source: src,
		Site:   site,
		OnSwap: func(m *manifest.Manifest) { swapped = append(swapped, m) },
	})

	if got := w.checkOnce(context.Background()); got != pollNoChange {
		t.Fatalf("same content = %v, want no change", got)
	}

	src.m = mustManifest(t, "v2")
	if got := w.checkOnce(context.Background()); got != pollSwapped {
		t.Fatalf("changed content = %v, want swapped", got)
	}
	if site.ManifestDigest() != src.m.Digest() || len(swapped) != 1 {
		t.Fatal("site not swapped or OnSwap not called")
	}

	src.err = errors.New("permission denied")
	if got := w.checkOnce(context.Background()); got != pollLoadError {
		t.Fatalf("load error = %v", got)
	}
	src.err = manifest.ErrNoFilesFound
	if got := w.checkOnce(context.Background()); got != pollLoadError {
		t.Fatalf("empty tree = %v", got)
	}
	if site.ManifestDigest() != mustManifest(t, "v2").Digest() {
		t.Fatal("failed load replaced the served manifest")
	}
}

func TestWatcher_QuietUnchangedPolls(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"index.html": "<p>v1</p>", "a.css": "a{}", "b.js": "1;"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	L, err := log.New(log.Options{Level: slog.LevelDebug, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	ctx := log.WithContext(context.Background(), L)

	src := DirSource{Root: dir}
	m, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	if n := strings.Count(buf.String(), "adding file"); n != 3 {
		t.Fatalf("initial load logged %d file lines, want 3", n)
	}

	site := NewSite()
	site.Set(m)
	w := NewWatcher(WatcherOptions{Logger: L, Source: src, Site: site})

	buf.Reset()
	for i := 0; i < 5; i++ {
		if got := w.checkOnce(ctx); got != pollNoChange {
			t.Fatalf("poll %d = %v, want no change", i, got)
		}
	}
	if out := buf.String(); strings.Contains(out, "adding file") || strings.Contains(out, "site file changed") {
		t.Fatalf("unchanged polls logged per-file lines:\n%s", out)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.css"), []byte("a{color:red}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := w.checkOnce(ctx); got != pollSwapped {
		t.Fatalf("changed poll = %v, want swapped", got)
	}
	out := buf.String()
	if strings.Contains(out, "adding file") {
		t.Fatalf("swap rebuilt loudly:\n%s", out)
	}
	if n := strings.Count(out, "site file changed"); n != 1 || !strings.Contains(out, "a.css") {
		t.Fatalf("swap should log only a.css, got:\n%s", out)
	}
}

func TestDiffManifests(t *testing.T) {
	mk := func(files map[string]string) *manifest.Manifest {
		var es []manifest.FileEntry
		for p, b := range files {
			es = append(es, manifest.FileEntry{RelativePath: p, Content: []byte(b), MediaType: "text/plain"})
		}
		m, err := manifest.New(es...)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	old := mk(map[string]string{"a": "1", "b": "2", "c": "3"})
	cur := mk(map[string]string{"a": "1", "b": "changed", "d": "4"})

	got := diffManifests(old, cur)
	want := []fileChange{{"b", "modified"}, {"d", "added"}, {"c", "removed"}}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changes = %v, want %v", got, want)
		}
	}

	if n := len(diffManifests(nil, cur)); n != 3 {
		t.Fatalf("first load reported %d changes, want 3", n)
	}
}

func TestWatcher_Backoff(t *testing.T) {
	w := &Watcher{interval: time.Second}
	for _, tt := range []struct {
		errs int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, maxBackoff},
	} {
		w.consecutiveErrs = tt.errs
		if got := w.backoffDuration(); got != tt.want {
			t.Errorf("errs=%d backoff = %v, want %v", tt.errs, got, tt.want)
		}
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	site := NewSite()
	w := NewWatcher(WatcherOptions{Source: &fakeSource{m: mustManifest(t, "x")}, Site: site, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for site.Manifest() == nil {
		select {
		case <-deadline:
			t.Fatal("watcher never loaded the manifest")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>hi</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := DirSource{Root: dir, Options: manifest.Options{Logger: log.Nop()}}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.HasIndex() {
		t.Fatal("index.html missing")
	}
}

func TestProgramSource(t *testing.T) {
	m := mustManifest(t, "<p>built</p>")
	program, err := worker.Generate(m)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "worker.js")
	if err := os.WriteFile(path, program, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ProgramSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Digest() != m.Digest() {
		t.Fatal("recovered manifest differs")
	}

	if _, err := (ProgramSource{Path: filepath.Join(t.TempDir(), "missing.js")}).Load(context.Background()); err == nil {
		t.Fatal("missing program should fail")
	}
}
