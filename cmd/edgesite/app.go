package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/archive"
	"github.com/keithlinneman/edgesite/internal/cfg"
	"github.com/keithlinneman/edgesite/internal/cloudflare"
	"github.com/keithlinneman/edgesite/internal/credentials"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/metrics"
	"github.com/keithlinneman/edgesite/internal/otelx"
	"github.com/keithlinneman/edgesite/internal/provision"
	"github.com/keithlinneman/edgesite/internal/siteconfig"
	"github.com/keithlinneman/edgesite/internal/version"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

const closeTimeout = 5 * time.Second

// app carries what every command shares: parsed config, the logger and the
// deploy metrics registry. It lives for one invocation.
type app struct {
	conf   cfg.App
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	logger  log.Logger
	metrics *metrics.Deploy
	closers []func(context.Context) error
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		getenv:  getenv,
		logger:  log.Nop(),
		metrics: metrics.NewDeploy(),
	}
}

// setup runs before every command: .env, env fill, validation, logging and
// tracing, in that order.
func (a *app) setup(cmd *cobra.Command) error {
	// a missing .env is fine; existing environment always wins
	_ = godotenv.Load()

	cfg.FillFromEnv(cmd.Flags(), cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(a.stderr, "config: "+format+"\n", args...)
	})
	if err := cfg.Validate(a.conf); err != nil {
		return xerrors.Wrap(err, "invalid configuration")
	}

	lvl, err := log.ParseLevel(a.conf.LogLevel)
	if err != nil {
		return err
	}
	vi := version.Get()
	lg, err := log.New(log.Options{
		App:               version.AppName,
		Version:           vi.Version,
		Level:             lvl,
		JsonFormat:        a.conf.LogJSON,
		IncludeErrorLinks: a.conf.IncludeErrorLinks,
		MaxErrorLinks:     a.conf.MaxErrorLinks,
		Writer:            a.stderr,
	})
	if err != nil {
		return xerrors.Wrap(err, "logger init")
	}
	a.logger = lg.With("command", cmd.Name())
	a.closers = append(a.closers, func(context.Context) error { return lg.Sync() })

	ctx := log.WithContext(cmd.Context(), a.logger)

	// Insecure because the collector is expected on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   a.conf.EnableTracing,
		Endpoint:  a.conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    a.conf.TraceSample,
		Service:   version.AppName,
		Component: cmd.Name(),
		Version:   vi.Version,
	})
	if err != nil {
		// tracing is optional; the command still runs
		a.logger.Error(ctx, err, "otel init failed")
	} else {
		a.closers = append(a.closers, shutdownOTEL)
	}

	cmd.SetContext(ctx)
	return nil
}

// close flushes spans and logs, newest first.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i](ctx)
	}
	a.closers = nil
}

func (a *app) credentialsPath() (string, error) {
	if a.conf.CredentialsFile != "" {
		return a.conf.CredentialsFile, nil
	}
	return credentials.DefaultPath()
}

// provisioner loads credentials and fails with ErrConfigurationMissing
// before anything touches the network.
func (a *app) provisioner() (*provision.Provisioner, error) {
	path, err := a.credentialsPath()
	if err != nil {
		return nil, err
	}
	creds, err := credentials.Load(path, a.getenv)
	if err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	client, err := cloudflare.New(cloudflare.Options{
		Credentials: creds,
		BaseURL:     a.conf.APIBaseURL,
		Timeout:     a.conf.RequestTimeout,
		Rate:        a.conf.APIRate,
		Logger:      a.logger,
		Observer:    a.metrics,
	})
	if err != nil {
		return nil, err
	}
	return provision.New(provision.Options{
		Client:             client,
		Credentials:        creds,
		Prefix:             a.conf.Prefix,
		PlaceholderAddress: a.conf.PlaceholderAddress,
		Logger:             a.logger,
		Metrics:            a.metrics,
	})
}

// site is a resolved site directory with its optional project file.
type site struct {
	root   string
	config siteconfig.Config
}

func loadSite(args []string) (site, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return site{}, xerrors.Wrapf(err, "resolve %s", dir)
	}
	sc, err := siteconfig.Load(root)
	if err != nil {
		return site{}, err
	}
	return site{root: root, config: sc}, nil
}

// name prefers the --name flag, then the project file, then the folder.
func (s site) name(flag string) string {
	if flag != "" {
		return flag
	}
	return s.config.Subdomain
}

func (s site) folder() string { return filepath.Base(s.root) }

func (s site) manifestOptions(L log.Logger) manifest.Options {
	return manifest.Options{Exclude: s.config.Exclude, Logger: L}
}

// pushMetrics is best effort; a CLI run never fails on telemetry.
func (a *app) pushMetrics(ctx context.Context, resource string) {
	if a.conf.PushgatewayURL == "" {
		return
	}
	grouping := map[string]string{"resource": resource}
	if err := a.metrics.Push(ctx, a.conf.PushgatewayURL, grouping, nil); err != nil {
		a.logger.Error(ctx, err, "metrics push failed", "pushgateway", a.conf.PushgatewayURL)
	}
}

// archiveRelease records a completed deploy when an archive bucket is
// configured. Failures are logged, never returned.
func (a *app) archiveRelease(ctx context.Context, resource string, m *manifest.Manifest, program []byte) {
	if a.conf.ArchiveBucket == "" {
		return
	}
	pub, err := archive.New(ctx, archive.Options{
		Logger:        a.logger,
		Bucket:        a.conf.ArchiveBucket,
		Prefix:        a.conf.ArchivePrefix,
		SSMPrefix:     a.conf.ArchiveSSMPrefix,
		SigningKeyARN: a.conf.ArchiveSigningKeyARN,
	})
	if err != nil {
		a.logger.Warn(ctx, "release archive unavailable", "bucket", a.conf.ArchiveBucket, "error", err.Error())
		return
	}
	rel, err := pub.Publish(ctx, resource, m, program)
	if err != nil {
		a.logger.Warn(ctx, "release archive failed", "bucket", a.conf.ArchiveBucket, "error", err.Error())
		return
	}
	a.logger.Info(ctx, "release archived",
		"bundle_key", rel.BundleKey,
		"parameter", rel.Parameter,
		"signed", rel.SignatureKey != "",
	)
}
