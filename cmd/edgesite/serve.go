package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/health"
	"github.com/keithlinneman/edgesite/internal/httpserver"
	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/metrics"
	"github.com/keithlinneman/edgesite/internal/preview"
	"github.com/keithlinneman/edgesite/internal/prof"
	"github.com/keithlinneman/edgesite/internal/version"
)

type serveOptions struct {
	script   string
	host     string
	watch    bool
	interval time.Duration
}

func newServeCmd(a *app) *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Preview a site locally with the same routing as the edge program",
		Long: `Serve a site directory, or a program written by 'edgesite build', on a
local port. Requests resolve exactly as they would at the edge.

Operational endpoints live under /-/: /-/healthy, /-/ready, /-/metrics and
/-/manifest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := o.source(args)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), src, o)
		},
	}
	cmd.Flags().StringVar(&o.script, "script", "", "serve a generated program instead of a directory")
	cmd.Flags().StringVar(&o.host, "host", httpserver.DefaultHost, "address to bind")
	cmd.Flags().BoolVar(&o.watch, "watch", true, "reload when the site changes")
	cmd.Flags().DurationVar(&o.interval, "poll-interval", preview.DefaultPollInterval, "how often --watch checks for changes")
	return cmd
}

func (o serveOptions) source(args []string) (preview.Source, error) {
	if o.script != "" {
		return preview.ProgramSource{Path: o.script}, nil
	}
	s, err := loadSite(args)
	if err != nil {
		return nil, err
	}
	return preview.DirSource{Root: s.root, Options: s.manifestOptions(nil)}, nil
}

func (a *app) serve(ctx context.Context, src preview.Source, o serveOptions) error {
	L := a.logger
	vi := version.Get()

	m, err := src.Load(ctx)
	if err != nil {
		return err
	}
	site := preview.NewSite()
	site.Set(m)

	sm := metrics.NewServer()
	sm.SetBuildInfo("serve", vi)
	sm.SetManifest(site.ManifestDigest(), m.Len(), m.TotalSize())

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       a.conf.EnablePyroscope,
		AppName:       version.AppName,
		ServerAddress: a.conf.PyroServer,
		TenantID:      a.conf.PyroTenantID,
		Tags: map[string]string{
			"app":       version.AppName,
			"component": "serve",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", a.conf.PyroServer)
	} else {
		sm.SetProfilingActive(a.conf.EnablePyroscope)
	}
	defer stopProf()

	var gate health.ShutdownGate
	api := preview.NewAPI(site, L)

	addr, stop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Host:         o.host,
		Port:         a.conf.ServePort,
		Routes:       api.RegisterRoutes,
		Site:         site,
		Metrics:      sm.Handler(),
		MetricsMW:    sm.Middleware,
		Readiness:    health.All(gate.Probe(), health.Named("manifest", site)),
		Manifest:     site,
		UseRecoverMW: true,
		OnPanic:      sm.IncHttpPanic,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "serving %d files on http://%s\n", m.Len(), addr)

	if o.watch {
		w := preview.NewWatcher(preview.WatcherOptions{
			Logger:       L,
			Source:       src,
			Site:         site,
			PollInterval: o.interval,
			OnSwap: func(m *manifest.Manifest) {
				sm.SetManifest(site.ManifestDigest(), m.Len(), m.TotalSize())
			},
		})
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				L.Error(ctx, err, "site watcher stopped")
			}
		}()
	}

	<-ctx.Done()
	gate.Set("shutting down")
	L.Info(context.Background(), "shutdown signal received")

	return stop(context.Background())
}
