package httpmw

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ManifestDigestHeader = "X-Edgesite-Manifest"
	ManifestFilesHeader  = "X-Edgesite-Files"
	shortDigestLen       = 12
)

// ManifestInfo identifies the manifest a preview server is serving.
type ManifestInfo interface {
	ManifestDigest() string
	ManifestFiles() int
}

// ManifestHeaders tags every response with a short manifest digest and file
// count, so a browser tab can be matched to a build.
func ManifestHeaders(info ManifestInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			digest := info.ManifestDigest()
			if digest != "" {
				short := digest
				if len(short) > shortDigestLen {
					short = short[:shortDigestLen]
				}
				w.Header().Set(ManifestDigestHeader, short)
				w.Header().Set(ManifestFilesHeader, strconv.Itoa(info.ManifestFiles()))

				if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
					span.SetAttributes(attribute.String("edgesite.manifest_digest", digest))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
