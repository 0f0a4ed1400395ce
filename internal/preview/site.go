// Package preview serves a manifest locally with the same routing policy the
// deployed program applies, and can rebuild it when the site directory
// changes.
package preview

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/worker"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

type snapshot struct {
	manifest *manifest.Manifest
	router   *worker.Router
	digest   string
	loadedAt time.Time
}

// Site holds the active manifest. Swaps are atomic; a request sees either
// the old or the new manifest, never a mix.
type Site struct {
	active atomic.Pointer[snapshot]
}

func NewSite() *Site { return &Site{} }

// Set makes m the served manifest.
func (s *Site) Set(m *manifest.Manifest) {
	s.active.Store(&snapshot{
		manifest: m,
		router:   worker.NewRouter(m),
		digest:   m.Digest(),
		loadedAt: time.Now().UTC(),
	})
}

// Manifest returns the served manifest, or nil before the first Set.
func (s *Site) Manifest() *manifest.Manifest {
	if snap := s.active.Load(); snap != nil {
		return snap.manifest
	}
	return nil
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := s.active.Load()
	if snap == nil {
		http.Error(w, "no manifest loaded", http.StatusServiceUnavailable)
		return
	}
	snap.router.ServeHTTP(w, r)
}

// ManifestDigest implements httpmw.ManifestInfo.
func (s *Site) ManifestDigest() string {
	if snap := s.active.Load(); snap != nil {
		return snap.digest
	}
	return ""
}

// ManifestFiles implements httpmw.ManifestInfo.
func (s *Site) ManifestFiles() int {
	if snap := s.active.Load(); snap != nil {
		return snap.manifest.Len()
	}
	return 0
}

func (s *Site) LoadedAt() time.Time {
	if snap := s.active.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

// Check is the readiness probe: ready once a manifest is loaded.
func (s *Site) Check(context.Context) error {
	if s.active.Load() == nil {
		return xerrors.New("no manifest loaded")
	}
	return nil
}
