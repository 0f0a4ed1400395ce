package worker

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"text/template"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/version"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// filesMarker starts the only line of the program that carries data.
const filesMarker = "const FILES = "

//go:embed program.js.tmpl
var programSource string

var programTmpl = template.Must(template.New("program").Parse(programSource))

type jsEntry struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

type programData struct {
	Version string
	Digest  string
	Count   int
	Files   string
}

// Generate renders m as a complete edge program. File names and contents are
// carried only inside JSON string literals, so no input can end the literal
// early or be read as template syntax.
func Generate(m *manifest.Manifest) ([]byte, error) {
	if m == nil || m.Len() == 0 {
		return nil, manifest.ErrNoFilesFound
	}

	files := make(map[string]jsEntry, m.Len())
	for _, e := range m.Entries() {
		files[e.RelativePath] = jsEntry{
			Type: e.MediaType,
			Body: base64.StdEncoding.EncodeToString(e.Content),
		}
	}
	// json.Marshal escapes <, >, &, U+2028 and U+2029 and never emits a raw newline
	raw, err := json.Marshal(files)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode manifest")
	}

	var buf bytes.Buffer
	err = programTmpl.Execute(&buf, programData{
		Version: version.Get().Version,
		Digest:  m.Digest(),
		Count:   m.Len(),
		Files:   string(raw),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "render program")
	}
	return buf.Bytes(), nil
}
