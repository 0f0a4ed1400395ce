package manifest

import (
	"context"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/pathutil"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// 25 MiB is the platform's script size ceiling, so neither a single file nor
// the whole site can usefully exceed it once embedded.
const (
	DefaultMaxFileSize  int64 = 25 << 20
	DefaultMaxTotalSize int64 = 25 << 20
)

var vcsDirs = map[string]struct{}{".git": {}, ".hg": {}, ".svn": {}}

var depCacheDirs = map[string]struct{}{"node_modules": {}, "bower_components": {}}

type Options struct {
	// Exclude holds extra path.Match globs, tested against the relative path
	// and against each of its segments
	Exclude      []string
	MaxFileSize  int64
	MaxTotalSize int64
	// Logger receives one line per file; defaults to the logger in ctx
	Logger log.Logger
}

func (o *Options) setDefaults(ctx context.Context) {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxTotalSize <= 0 {
		o.MaxTotalSize = DefaultMaxTotalSize
	}
	if o.Logger == nil {
		o.Logger = log.FromContext(ctx)
	}
}

// Excluded reports whether rel should be left out of a manifest. For a
// directory a match prunes the whole subtree.
func (o Options) Excluded(rel string) bool {
	if pathutil.IsHidden(rel) {
		return true
	}
	if pathutil.HasSegment(rel, vcsDirs) || pathutil.HasSegment(rel, depCacheDirs) {
		return true
	}
	return matchesAny(o.Exclude, rel)
}

func matchesAny(globs []string, rel string) bool {
	if len(globs) == 0 {
		return false
	}
	segs := strings.Split(rel, "/")
	for _, g := range globs {
		if ok, _ := path.Match(g, rel); ok {
			return true
		}
		for _, s := range segs {
			if ok, _ := path.Match(g, s); ok {
				return true
			}
		}
	}
	return false
}

// Build walks root and returns every deployable regular file. Symlinks and
// other non-regular entries are skipped, never followed.
func Build(ctx context.Context, root string, opts Options) (*Manifest, error) {
	opts.setDefaults(ctx)

	fi, err := os.Stat(root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stat %s", root)
	}
	if !fi.IsDir() {
		return nil, xerrors.Newf("%s is not a directory", root)
	}
	return BuildFS(ctx, os.DirFS(root), opts)
}

// BuildFS is Build over an arbitrary fs.FS rooted at the site directory.
func BuildFS(ctx context.Context, fsys fs.FS, opts Options) (*Manifest, error) {
	opts.setDefaults(ctx)

	var (
		entries []FileEntry
		total   int64
	)
	err := fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return xerrors.Wrapf(walkErr, "walk %s", rel)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if opts.Excluded(rel) {
				opts.Logger.Debug(ctx, "skipping directory", "path", rel)
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || opts.Excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return xerrors.Wrapf(err, "stat %s", rel)
		}
		if info.Size() > opts.MaxFileSize {
			return xerrors.Newf("file %s is %d bytes, over the %d byte per-file limit", rel, info.Size(), opts.MaxFileSize)
		}
		if total+info.Size() > opts.MaxTotalSize {
			return xerrors.Newf("site exceeds the %d byte total limit at %s", opts.MaxTotalSize, rel)
		}

		content, err := fs.ReadFile(fsys, rel)
		if err != nil {
			return xerrors.Wrapf(err, "read %s", rel)
		}
		total += int64(len(content))

		e := FileEntry{RelativePath: rel, Content: content, MediaType: MediaType(rel, content)}
		entries = append(entries, e)
		opts.Logger.Info(ctx, "adding file", "path", rel, "type", e.MediaType, "bytes", len(content))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, ErrNoFilesFound
	}
	return New(entries...)
}
