package preview

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/keithlinneman/edgesite/internal/cryptoutil"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/manifest"
)

const (
	// DefaultPollInterval is how often the watcher rebuilds the manifest.
	DefaultPollInterval = 2 * time.Second

	// maxBackoff caps exponential backoff on consecutive load errors.
	maxBackoff = 30 * time.Second
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollLoadError
)

type WatcherOptions struct {
	Logger       log.Logger
	Source       Source
	Site         *Site
	PollInterval time.Duration

	// OnSwap runs synchronously on the poll goroutine after each swap.
	OnSwap func(m *manifest.Manifest)
}

// Watcher reloads the Source on an interval and swaps the Site's manifest
// when its digest changes. A failed load keeps the current manifest.
type Watcher struct {
	source   Source
	site     *Site
	logger   log.Logger
	interval time.Duration
	onSwap   func(m *manifest.Manifest)

	currentDigest   string
	consecutiveErrs int
	swapCount       int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		source:        opts.Source,
		site:          opts.Site,
		logger:        opts.Logger,
		interval:      interval,
		onSwap:        opts.OnSwap,
		currentDigest: opts.Site.ManifestDigest(),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "watching site for changes", "poll_interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "site watcher stopping", "swaps", w.swapCount)
			return ctx.Err()
		case <-ticker.C:
			if w.checkOnce(ctx) == pollLoadError {
				w.consecutiveErrs++
				ticker.Reset(w.backoffDuration())
			} else if w.consecutiveErrs > 0 {
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	// a rebuild runs every poll; per-file lines come from logChanges on a swap
	m, err := w.source.Load(log.WithContext(ctx, log.Nop()))
	if err != nil {
		// an empty tree mid-edit is common; say so without a stack
		if errors.Is(err, manifest.ErrNoFilesFound) {
			w.logger.Warn(ctx, "site has no deployable files, keeping current manifest")
		} else {
			w.logger.Error(ctx, err, "rebuild failed, keeping current manifest")
		}
		return pollLoadError
	}

	digest := m.Digest()
	if cryptoutil.HashEqual(digest, w.currentDigest) {
		return pollNoChange
	}

	w.logChanges(ctx, w.site.Manifest(), m)
	w.site.Set(m)
	w.swapCount++
	w.logger.Info(ctx, "site changed, manifest swapped",
		"old_digest", truncDigest(w.currentDigest),
		"new_digest", truncDigest(digest),
		"files", m.Len(),
	)
	w.currentDigest = digest

	if w.onSwap != nil {
		w.onSwap(m)
	}
	return pollSwapped
}

// backoffDuration doubles the interval per consecutive error, capped at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for i := 0; i < w.consecutiveErrs && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// logChanges writes one line per path added, removed or modified by a swap.
func (w *Watcher) logChanges(ctx context.Context, old, cur *manifest.Manifest) {
	for _, c := range diffManifests(old, cur) {
		w.logger.Info(ctx, "site file changed", "path", c.path, "change", c.kind)
	}
}

type fileChange struct {
	path string
	kind string
}

func diffManifests(old, cur *manifest.Manifest) []fileChange {
	var out []fileChange
	for _, p := range cur.Paths() {
		e, _ := cur.Lookup(p)
		var prev manifest.FileEntry
		var ok bool
		if old != nil {
			prev, ok = old.Lookup(p)
		}
		switch {
		case !ok:
			out = append(out, fileChange{p, "added"})
		case !bytes.Equal(prev.Content, e.Content) || prev.MediaType != e.MediaType:
			out = append(out, fileChange{p, "modified"})
		}
	}
	if old != nil {
		for _, p := range old.Paths() {
			if _, ok := cur.Lookup(p); !ok {
				out = append(out, fileChange{p, "removed"})
			}
		}
	}
	return out
}

func truncDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
