// Package manifest turns a directory tree into the in-memory set of files a
// generated edge program serves.
package manifest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/keithlinneman/edgesite/internal/pathutil"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// ErrNoFilesFound means nothing deployable was left after exclusions.
var ErrNoFilesFound = errors.New("no deployable files found")

// IndexPath is the entry served for "/" and for extensionless misses.
const IndexPath = "index.html"

// FileEntry is immutable once the manifest is built.
type FileEntry struct {
	RelativePath string
	Content      []byte
	MediaType    string
}

// Manifest maps relative paths to entries. It is never empty.
type Manifest struct {
	entries map[string]FileEntry
	total   int64
}

// New assembles a manifest from entries, rejecting an empty set, duplicate
// paths and paths that could not have come from a directory walk.
func New(entries ...FileEntry) (*Manifest, error) {
	if len(entries) == 0 {
		return nil, ErrNoFilesFound
	}
	m := &Manifest{entries: make(map[string]FileEntry, len(entries))}
	for _, e := range entries {
		if err := validPath(e.RelativePath); err != nil {
			return nil, err
		}
		if _, dup := m.entries[e.RelativePath]; dup {
			return nil, xerrors.Newf("duplicate path %q", e.RelativePath)
		}
		if e.MediaType == "" {
			e.MediaType = DefaultMediaType
		}
		m.entries[e.RelativePath] = e
		m.total += int64(len(e.Content))
	}
	return m, nil
}

func validPath(p string) error {
	switch {
	case p == "":
		return xerrors.New("empty path")
	case strings.HasPrefix(p, "/") || strings.HasPrefix(p, "."):
		return xerrors.Newf("path %q may not start with '/' or '.'", p)
	case strings.Contains(p, "\\"):
		return xerrors.Newf("path %q must use '/' separators", p)
	case pathutil.HasDotSegments(p) || strings.Contains(p, "//") || strings.HasSuffix(p, "/"):
		return xerrors.Newf("path %q is not clean", p)
	}
	return nil
}

func (m *Manifest) Lookup(p string) (FileEntry, bool) {
	e, ok := m.entries[p]
	return e, ok
}

func (m *Manifest) Len() int { return len(m.entries) }

// TotalSize is the sum of all content lengths.
func (m *Manifest) TotalSize() int64 { return m.total }

// HasIndex reports whether index.html is present.
func (m *Manifest) HasIndex() bool {
	_, ok := m.entries[IndexPath]
	return ok
}

// Paths returns every relative path in sorted order.
func (m *Manifest) Paths() []string {
	out := make([]string, 0, len(m.entries))
	for p := range m.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entries returns every entry ordered by path.
func (m *Manifest) Entries() []FileEntry {
	paths := m.Paths()
	out := make([]FileEntry, len(paths))
	for i, p := range paths {
		out[i] = m.entries[p]
	}
	return out
}

// Digest is a hex sha256 over path, media type and content of every entry in
// path order. Equal manifests have equal digests.
func (m *Manifest) Digest() string {
	h := sha256.New()
	var n [8]byte
	for _, e := range m.Entries() {
		for _, field := range [][]byte{[]byte(e.RelativePath), []byte(e.MediaType), e.Content} {
			binary.BigEndian.PutUint64(n[:], uint64(len(field)))
			h.Write(n[:])
			h.Write(field)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
