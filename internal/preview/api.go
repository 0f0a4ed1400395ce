package preview

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/edgesite/internal/log"
)

// ManifestPath serves a JSON description of the manifest being previewed.
const ManifestPath = "/-/manifest"

type API struct {
	site   *Site
	logger log.Logger
}

func NewAPI(site *Site, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{site: site, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Get(ManifestPath, api.HandleManifest)
}

type FileInfo struct {
	Path      string `json:"path"`
	MediaType string `json:"media_type"`
	Size      int    `json:"size"`
}

type ManifestResponse struct {
	Digest     string     `json:"digest"`
	TotalFiles int        `json:"total_files"`
	TotalSize  int64      `json:"total_size"`
	HasIndex   bool       `json:"has_index"`
	LoadedAt   time.Time  `json:"loaded_at"`
	ServerTime time.Time  `json:"server_time"`
	Files      []FileInfo `json:"files"`
}

func (api *API) HandleManifest(w http.ResponseWriter, r *http.Request) {
	m := api.site.Manifest()
	if m == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no manifest loaded"})
		return
	}

	resp := ManifestResponse{
		Digest:     api.site.ManifestDigest(),
		TotalFiles: m.Len(),
		TotalSize:  m.TotalSize(),
		HasIndex:   m.HasIndex(),
		LoadedAt:   api.site.LoadedAt(),
		ServerTime: time.Now().UTC(),
		Files:      make([]FileInfo, 0, m.Len()),
	}
	for _, p := range m.Paths() {
		e, _ := m.Lookup(p)
		resp.Files = append(resp.Files, FileInfo{Path: p, MediaType: e.MediaType, Size: len(e.Content)})
	}

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		api.logger.Error(r.Context(), err, "write manifest response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
