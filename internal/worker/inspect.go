package worker

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const digestMarker = "// manifest sha256:"

// Inspect recovers the manifest embedded in a program produced by Generate.
// When the header names a digest it must match the recovered files.
func Inspect(program []byte) (*manifest.Manifest, error) {
	var (
		filesLine  string
		wantDigest string
		found      bool
	)
	sc := bufio.NewScanner(bytes.NewReader(program))
	sc.Buffer(make([]byte, 0, 64*1024), len(program)+1)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, digestMarker) && wantDigest == "":
			wantDigest, _, _ = strings.Cut(strings.TrimPrefix(line, digestMarker), " ")
		case strings.HasPrefix(line, filesMarker):
			filesLine = strings.TrimSuffix(strings.TrimPrefix(line, filesMarker), ";")
			found = true
		}
		if found {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "scan program")
	}
	if !found {
		return nil, xerrors.New("program has no embedded files")
	}

	var files map[string]jsEntry
	if err := json.Unmarshal([]byte(filesLine), &files); err != nil {
		return nil, xerrors.Wrap(err, "decode embedded files")
	}

	entries := make([]manifest.FileEntry, 0, len(files))
	for p, f := range files {
		body, err := base64.StdEncoding.DecodeString(f.Body)
		if err != nil {
			return nil, xerrors.Wrapf(err, "decode body of %s", p)
		}
		entries = append(entries, manifest.FileEntry{RelativePath: p, Content: body, MediaType: f.Type})
	}
	m, err := manifest.New(entries...)
	if err != nil {
		return nil, err
	}

	if wantDigest != "" && wantDigest != m.Digest() {
		return nil, xerrors.Newf("program digest mismatch: header %s, content %s", wantDigest, m.Digest())
	}
	return m, nil
}
