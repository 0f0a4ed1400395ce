package preview

import (
	"context"
	"os"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/worker"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Source produces the manifest to serve.
type Source interface {
	Load(ctx context.Context) (*manifest.Manifest, error)
}

// DirSource builds the manifest from a site directory on every Load. With a
// nil Options.Logger, per-file lines go to the logger in ctx.
type DirSource struct {
	Root    string
	Options manifest.Options
}

func (d DirSource) Load(ctx context.Context) (*manifest.Manifest, error) {
	return manifest.Build(ctx, d.Root, d.Options)
}

// ProgramSource recovers the manifest from a previously generated program,
// so a built artifact can be previewed exactly as it would be deployed.
type ProgramSource struct {
	Path string
}

func (p ProgramSource) Load(context.Context) (*manifest.Manifest, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read program %s", p.Path)
	}
	m, err := worker.Inspect(raw)
	if err != nil {
		return nil, xerrors.Wrapf(err, "inspect program %s", p.Path)
	}
	return m, nil
}
