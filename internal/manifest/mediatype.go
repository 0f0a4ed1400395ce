package manifest

import (
	"net/http"
	"path"
	"strings"
)

const DefaultMediaType = "application/octet-stream"

// sniffLen matches what http.DetectContentType considers.
const sniffLen = 512

var extensionTypes = map[string]string{
	".html":        "text/html",
	".htm":         "text/html",
	".css":         "text/css",
	".js":          "application/javascript",
	".mjs":         "application/javascript",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".xml":         "application/xml",
	".txt":         "text/plain",
	".md":          "text/markdown",
	".csv":         "text/csv",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".svg":         "image/svg+xml",
	".ico":         "image/x-icon",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".otf":         "font/otf",
	".pdf":         "application/pdf",
	".wasm":        "application/wasm",
	".mp3":         "audio/mpeg",
	".ogg":         "audio/ogg",
	".mp4":         "video/mp4",
	".webm":        "video/webm",
}

// MediaType resolves by extension, then by sniffing head, then falls back to
// application/octet-stream.
func MediaType(name string, head []byte) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	if len(head) > 0 {
		if len(head) > sniffLen {
			head = head[:sniffLen]
		}
		if t := http.DetectContentType(head); t != DefaultMediaType {
			return t
		}
	}
	return DefaultMediaType
}
