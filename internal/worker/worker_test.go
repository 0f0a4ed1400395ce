package worker

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/edgesite/internal/manifest"
)

func mustManifest(t *testing.T, entries ...manifest.FileEntry) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New(entries...)
	if err != nil {
		t.Fatalf("manifest.New: %v", err)
	}
	return m
}

func adversarial(t *testing.T) *manifest.Manifest {
	return mustManifest(t,
		manifest.FileEntry{RelativePath: "index.html", Content: []byte("<script>alert(1)</script>"), MediaType: "text/html"},
		manifest.FileEntry{RelativePath: "</script>.html", Content: []byte("</script><!--"), MediaType: "text/html"},
		manifest.FileEntry{RelativePath: "x*/y.js", Content: []byte("/* */ */ `${process}` \\u0000"), MediaType: "application/javascript"},
		manifest.FileEntry{RelativePath: "`${a}`.txt", Content: []byte("${globalThis}"), MediaType: "text/plain"},
		manifest.FileEntry{RelativePath: "{{.Files}}.txt", Content: []byte("{{.Digest}} {{template \"x\"}}"), MediaType: "text/plain"},
		manifest.FileEntry{RelativePath: "sep\u2028\u2029.txt", Content: []byte("a\u2028b\u2029c\r\nd"), MediaType: "text/plain"},
		manifest.FileEntry{RelativePath: "blob.bin", Content: []byte{0x00, 0xff, 0xfe, 0xc3, 0x28, 0x00}, MediaType: manifest.DefaultMediaType},
		manifest.FileEntry{RelativePath: "quote'\".txt", Content: []byte("';\"\n"), MediaType: "text/plain"},
		manifest.FileEntry{RelativePath: "empty", Content: nil, MediaType: "text/plain"},
	)
}

func TestGenerateInspect_RoundTrip(t *testing.T) {
	in := adversarial(t)
	program, err := Generate(in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	out, err := Inspect(program)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("Len = %d, want %d", out.Len(), in.Len())
	}
	for _, want := range in.Entries() {
		got, ok := out.Lookup(want.RelativePath)
		if !ok {
			t.Fatalf("missing %q", want.RelativePath)
		}
		if !bytes.Equal(got.Content, want.Content) {
			t.Errorf("%q content = %q, want %q", want.RelativePath, got.Content, want.Content)
		}
		if got.MediaType != want.MediaType {
			t.Errorf("%q type = %q, want %q", want.RelativePath, got.MediaType, want.MediaType)
		}
	}
	if out.Digest() != in.Digest() {
		t.Fatal("digest changed across round trip")
	}
}

func TestGenerate_DataCannotEscape(t *testing.T) {
	program, err := Generate(adversarial(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"</script>", "\u2028", "\u2029"} {
		if bytes.Contains(program, []byte(bad)) {
			t.Errorf("program contains raw %q", bad)
		}
	}
	// the data line is the only line mentioning FILES =
	if n := bytes.Count(program, []byte(filesMarker)); n != 1 {
		t.Fatalf("found %d data lines", n)
	}
}

func TestGenerate_Header(t *testing.T) {
	m := mustManifest(t, manifest.FileEntry{RelativePath: "index.html", Content: []byte("x"), MediaType: "text/html"})
	program, err := Generate(m)
	if err != nil {
		t.Fatal(err)
	}
	s := string(program)
	if !strings.HasPrefix(s, "// Generated by edgesite ") {
		t.Fatalf("header = %q", strings.SplitN(s, "\n", 2)[0])
	}
	if !strings.Contains(s, digestMarker+m.Digest()+" files:1") {
		t.Fatal("digest header missing")
	}
	if strings.Count(s, "addEventListener('fetch'") != 1 {
		t.Fatal("want exactly one fetch listener")
	}
	if strings.Contains(s, "import ") || strings.Contains(s, "require(") {
		t.Fatal("program must be self-contained")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(adversarial(t))
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	b, err := Generate(adversarial(t))
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if len(a) == 0 {
		t.Fatal("Generate returned an empty program")
	}
	if !bytes.Equal(a, b) {
		t.Fatal("Generate is not deterministic")
	}
}

func TestGenerate_Empty(t *testing.T) {
	if _, err := Generate(nil); err != manifest.ErrNoFilesFound {
		t.Fatalf("err = %v", err)
	}
}

func TestInspect_Errors(t *testing.T) {
	m := mustManifest(t, manifest.FileEntry{RelativePath: "index.html", Content: []byte("x"), MediaType: "text/html"})
	program, _ := Generate(m)

	tests := []struct {
		name    string
		program []byte
		wantErr string
	}{
		{"no data", []byte("addEventListener('fetch', () => {})\n"), "no embedded files"},
		{"bad json", []byte(filesMarker + "{nope};\n"), "decode embedded files"},
		{"bad base64", []byte(filesMarker + `{"a":{"type":"text/plain","body":"!!"}};` + "\n"), "decode body"},
		{"empty files", []byte(filesMarker + "{};\n"), "no deployable files"},
		{"tampered", bytes.Replace(program, []byte(`"body":"eA=="`), []byte(`"body":"eQ=="`), 1), "digest mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inspect(tt.program)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRouter_Policy(t *testing.T) {
	withIndex := mustManifest(t,
		manifest.FileEntry{RelativePath: "index.html", Content: []byte("<home>"), MediaType: "text/html"},
		manifest.FileEntry{RelativePath: "app.js", Content: []byte("js"), MediaType: "application/javascript"},
		manifest.FileEntry{RelativePath: "docs/guide", Content: []byte("guide"), MediaType: "text/plain"},
	)
	noIndex := mustManifest(t,
		manifest.FileEntry{RelativePath: "app.js", Content: []byte("js"), MediaType: "application/javascript"},
	)

	tests := []struct {
		name   string
		m      *manifest.Manifest
		path   string
		status int
		ctype  string
		body   string
		cached bool
		cors   bool
	}{
		{"root is index", withIndex, "/", 200, "text/html", "<home>", true, true},
		{"explicit index", withIndex, "/index.html", 200, "text/html", "<home>", true, true},
		{"asset", withIndex, "/app.js", 200, "application/javascript", "js", true, true},
		{"extensionless file hit", withIndex, "/docs/guide", 200, "text/plain", "guide", true, true},
		{"spa fallback", withIndex, "/about", 200, "text/html", "<home>", true, false},
		{"deep spa fallback", withIndex, "/a/b/c", 200, "text/html", "<home>", true, false},
		{"missing asset", withIndex, "/missing.png", 404, "text/plain", "Not found: /missing.png", false, false},
		{"dot in directory", withIndex, "/v1.2/page", 404, "text/plain", "Not found: /v1.2/page", false, false},
		{"no index no fallback", noIndex, "/about", 404, "text/plain", "Not found: /about", false, false},
		{"no index root", noIndex, "/", 404, "text/plain", "Not found: /index.html", false, false},
		{"missing asset no index", noIndex, "/missing.png", 404, "text/plain", "Not found: /missing.png", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewRouter(tt.m).Resolve(tt.path)
			if res.Status != tt.status {
				t.Fatalf("status = %d, want %d", res.Status, tt.status)
			}
			if got := res.Header.Get("Content-Type"); got != tt.ctype {
				t.Errorf("Content-Type = %q, want %q", got, tt.ctype)
			}
			if string(res.Body) != tt.body {
				t.Errorf("body = %q, want %q", res.Body, tt.body)
			}
			if got := res.Header.Get("Cache-Control") == CacheControl; got != tt.cached {
				t.Errorf("cached = %v, want %v", got, tt.cached)
			}
			if got := res.Header.Get("Access-Control-Allow-Origin") == "*"; got != tt.cors {
				t.Errorf("cors = %v, want %v", got, tt.cors)
			}
		})
	}
}

func TestRouter_RootEqualsIndex(t *testing.T) {
	rt := NewRouter(adversarial(t))
	a, b := rt.Resolve("/"), rt.Resolve("/index.html")
	if a.Status != b.Status || !bytes.Equal(a.Body, b.Body) || a.Header.Get("Content-Type") != b.Header.Get("Content-Type") {
		t.Fatal("/ and /index.html differ")
	}
}

func TestRouter_ServeHTTP(t *testing.T) {
	m := mustManifest(t,
		manifest.FileEntry{RelativePath: "index.html", Content: []byte("<home>"), MediaType: "text/html"},
		manifest.FileEntry{RelativePath: "hello world.txt", Content: []byte("hi"), MediaType: "text/plain"},
	)
	srv := httptest.NewServer(NewRouter(m))
	defer srv.Close()

	// percent-encoded paths are decoded before lookup
	resp, err := http.Get(srv.URL + "/hello%20world.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("got %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	req := httptest.NewRequest(http.MethodHead, "/", nil)
	rec := httptest.NewRecorder()
	NewRouter(m).ServeHTTP(rec, req)
	if rec.Code != 200 || rec.Body.Len() != 0 {
		t.Fatalf("HEAD: code %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_ServesInspectedProgram(t *testing.T) {
	in := adversarial(t)
	program, _ := Generate(in)
	out, err := Inspect(program)
	if err != nil {
		t.Fatal(err)
	}
	want, got := NewRouter(in), NewRouter(out)
	for _, p := range []string{"/", "/blob.bin", "/</script>.html", "/about", "/nope.css"} {
		a, b := want.Resolve(p), got.Resolve(p)
		if a.Status != b.Status || !bytes.Equal(a.Body, b.Body) {
			t.Errorf("%s: %d %q vs %d %q", p, a.Status, a.Body, b.Status, b.Body)
		}
	}
}
