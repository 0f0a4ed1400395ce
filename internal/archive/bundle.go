package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Bundle writes the manifest as a gzip tarball. Entries are sorted with
// zeroed timestamps so the same manifest always yields the same bytes.
func Bundle(m *manifest.Manifest) ([]byte, error) {
	if m == nil || m.Len() == 0 {
		return nil, manifest.ErrNoFilesFound
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	for _, p := range m.Paths() {
		e, _ := m.Lookup(p)
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     p,
			Mode:     0o644,
			Size:     int64(len(e.Content)),
			Format:   tar.FormatPAX,
			PAXRecords: map[string]string{
				"EDGESITE.media_type": e.MediaType,
			},
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, xerrors.Wrapf(err, "write tar header %s", p)
		}
		if _, err := tw.Write(e.Content); err != nil {
			return nil, xerrors.Wrapf(err, "write tar entry %s", p)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, xerrors.Wrap(err, "close tar")
	}
	if err := gw.Close(); err != nil {
		return nil, xerrors.Wrap(err, "close gzip")
	}
	return buf.Bytes(), nil
}
