package manifest

import (
	"bytes"
	"testing"
)

func TestMediaType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"index.html", nil, "text/html"},
		{"INDEX.HTM", nil, "text/html"},
		{"app.js", nil, "application/javascript"},
		{"mod.mjs", nil, "application/javascript"},
		{"data.json", nil, "application/json"},
		{"logo.svg", nil, "image/svg+xml"},
		{"font.woff2", nil, "font/woff2"},
		{"app.wasm", nil, "application/wasm"},
		{"photo.JPG", nil, "image/jpeg"},
		// extension wins over content
		{"notes.txt", png, "text/plain"},
		// no extension: sniffed
		{"LICENSE", []byte("MIT License\n\nCopyright"), "text/plain; charset=utf-8"},
		{"image", png, "image/png"},
		{"page", []byte("<!DOCTYPE html><html>"), "text/html; charset=utf-8"},
		// unknown extension and unrecognizable bytes
		{"blob.bin", []byte{0x00, 0x01, 0x02, 0xfe}, DefaultMediaType},
		{"empty.unknown", nil, DefaultMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MediaType(tt.name, tt.head); got != tt.want {
				t.Fatalf("MediaType(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestMediaType_SniffsOnlyPrefix(t *testing.T) {
	head := append(bytes.Repeat([]byte("a"), sniffLen), 0x00)
	if got := MediaType("file", head); got != "text/plain; charset=utf-8" {
		t.Fatalf("bytes past the sniff window changed the result: %q", got)
	}
}
