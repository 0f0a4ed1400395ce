package manifest

import (
	"errors"
	"testing"
)

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []FileEntry
	}{
		{"empty", nil},
		{"leading slash", []FileEntry{{RelativePath: "/index.html"}}},
		{"hidden", []FileEntry{{RelativePath: ".env"}}},
		{"dot segment", []FileEntry{{RelativePath: "a/../b"}}},
		{"double slash", []FileEntry{{RelativePath: "a//b"}}},
		{"backslash", []FileEntry{{RelativePath: `a\b`}}},
		{"duplicate", []FileEntry{{RelativePath: "a"}, {RelativePath: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.entries...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New(); !errors.Is(err, ErrNoFilesFound) {
		t.Fatalf("empty manifest err = %v, want ErrNoFilesFound", err)
	}
}

func TestManifest_Accessors(t *testing.T) {
	m, err := New(
		FileEntry{RelativePath: "b.css", Content: []byte("b{}"), MediaType: "text/css"},
		FileEntry{RelativePath: "index.html", Content: []byte("<h1>"), MediaType: "text/html"},
		FileEntry{RelativePath: "a/blob", Content: []byte{0, 1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len = %d", m.Len())
	}
	if m.TotalSize() != 9 {
		t.Fatalf("TotalSize = %d", m.TotalSize())
	}
	if !m.HasIndex() {
		t.Fatal("HasIndex = false")
	}
	got := m.Paths()
	want := []string{"a/blob", "b.css", "index.html"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Paths = %v, want %v", got, want)
		}
	}
	e, ok := m.Lookup("a/blob")
	if !ok || e.MediaType != DefaultMediaType {
		t.Fatalf("Lookup(a/blob) = %+v, %v", e, ok)
	}
	if _, ok := m.Lookup("/b.css"); ok {
		t.Fatal("lookup must be exact")
	}
}

func TestDigest(t *testing.T) {
	a, _ := New(
		FileEntry{RelativePath: "x", Content: []byte("1"), MediaType: "text/plain"},
		FileEntry{RelativePath: "y", Content: []byte("2"), MediaType: "text/plain"},
	)
	b, _ := New(
		FileEntry{RelativePath: "y", Content: []byte("2"), MediaType: "text/plain"},
		FileEntry{RelativePath: "x", Content: []byte("1"), MediaType: "text/plain"},
	)
	if a.Digest() != b.Digest() {
		t.Fatal("digest depends on insertion order")
	}
	if len(a.Digest()) != 64 {
		t.Fatalf("digest = %q", a.Digest())
	}

	// moving a byte between fields must change the digest
	c, _ := New(
		FileEntry{RelativePath: "x", Content: []byte("12"), MediaType: "text/plain"},
		FileEntry{RelativePath: "y", Content: []byte(""), MediaType: "text/plain"},
	)
	if a.Digest() == c.Digest() {
		t.Fatal("digest collision across field boundaries")
	}
	d, _ := New(FileEntry{RelativePath: "x", Content: []byte("1"), MediaType: "text/css"},
		FileEntry{RelativePath: "y", Content: []byte("2"), MediaType: "text/plain"})
	if a.Digest() == d.Digest() {
		t.Fatal("media type not covered by digest")
	}
}
