package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/edgesite/internal/cloudflare"
	"github.com/keithlinneman/edgesite/internal/credentials"
	"github.com/keithlinneman/edgesite/internal/log"
	"github.com/keithlinneman/edgesite/internal/otelx"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// DefaultPlaceholderAddress is the discard-only IPv6 prefix. The record only
// exists so the proxied host resolves; the worker answers before any origin.
const DefaultPlaceholderAddress = "100::"

const (
	StepDNS    = "dns"
	StepUpload = "upload"
	StepRoute  = "route"
	StepPurge  = "purge"
	StepDelete = "delete"
	StepList   = "list"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSatisfied Outcome = "already-satisfied"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// routeExists is how the platform reports a route bound by an earlier deploy.
const routeExists = "route with the same pattern already exists"

// Client is the remote surface provisioning needs. *cloudflare.Client
// implements it.
type Client interface {
	UploadScript(ctx context.Context, name string, program []byte) cloudflare.Result
	DeleteScript(ctx context.Context, name string) cloudflare.Result
	ListScripts(ctx context.Context) ([]string, cloudflare.Result)
	CreateRoute(ctx context.Context, pattern, script string) cloudflare.Result
	QueryDNSRecord(ctx context.Context, name string) (int, cloudflare.Result)
	CreateDNSRecord(ctx context.Context, name, content string, proxied bool) cloudflare.Result
	PurgeCache(ctx context.Context) cloudflare.Result
}

// Metrics receives step and operation outcomes. *metrics.Deploy implements it.
type Metrics interface {
	ObserveStep(step, outcome string)
	ObserveOperation(operation string, success bool, dur time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStep(string, string)                  {}
func (nopMetrics) ObserveOperation(string, bool, time.Duration) {}

type Options struct {
	Client      Client
	Credentials credentials.Credentials

	// Prefix for resource names (default DefaultPrefix)
	Prefix string

	// PlaceholderAddress for the AAAA record (default DefaultPlaceholderAddress)
	PlaceholderAddress string

	Logger  log.Logger
	Metrics Metrics
}

func (o *Options) setDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.PlaceholderAddress == "" {
		o.PlaceholderAddress = DefaultPlaceholderAddress
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
}

type Provisioner struct {
	opts   Options
	client Client
	logger log.Logger
	tracer trace.Tracer
}

// New checks credentials up front so a missing value fails before any
// network call.
func New(opts Options) (*Provisioner, error) {
	if opts.Client == nil {
		return nil, xerrors.New("provision: client is required")
	}
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()
	opts.Credentials.BaseDomain = normalizeBase(opts.Credentials.BaseDomain)
	return &Provisioner{
		opts:   opts,
		client: opts.Client,
		logger: opts.Logger,
		tracer: otelx.Tracer(),
	}, nil
}

// Identity resolves a site name against the configured base domain and prefix.
func (p *Provisioner) Identity(input, folder string) (SiteIdentity, error) {
	return ResolveIdentity(input, folder, p.opts.Credentials.BaseDomain, p.opts.Prefix)
}

// StepResult is one row of a Report.
type StepResult struct {
	Step    string  `json:"step"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// Report is returned by Deploy and Teardown even when they fail, so callers
// can show how far the run got.
type Report struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Identity  SiteIdentity  `json:"identity"`
	URL       string        `json:"url"`
	Steps     []StepResult  `json:"steps"`
	Warnings  []string      `json:"warnings,omitempty"`
	Notes     []string      `json:"notes,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func newReport(operation string, id SiteIdentity, steps ...string) *Report {
	r := &Report{
		ID:        uuid.NewString(),
		Operation: operation,
		Identity:  id,
		URL:       id.URL(),
	}
	for _, s := range steps {
		r.Steps = append(r.Steps, StepResult{Step: s, Outcome: OutcomeSkipped})
	}
	return r
}

func (r *Report) set(step string, o Outcome, msg string) {
	for i := range r.Steps {
		if r.Steps[i].Step == step {
			r.Steps[i].Outcome = o
			r.Steps[i].Message = msg
			return
		}
	}
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: o, Message: msg})
}

// Outcome reports what happened to step, or "" if the report has no such step.
func (r *Report) Outcome(step string) Outcome {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Outcome
		}
	}
	return ""
}

// runStep wraps one step in a span and records its outcome on the report,
// the logger and the metrics.
func (p *Provisioner) runStep(ctx context.Context, r *Report, step string, fn func(ctx context.Context) (Outcome, *StepError)) *StepError {
	ctx, span := p.tracer.Start(ctx, "provision."+step, trace.WithAttributes(
		attribute.String("edgesite.deployment_id", r.ID),
		attribute.String("edgesite.resource", r.Identity.ResourceName),
	))
	defer span.End()

	o, serr := fn(ctx)
	msg := ""
	if serr != nil {
		o = OutcomeFailed
		msg = serr.Error()
		span.SetStatus(codes.Error, msg)
		if serr.Err != nil {
			span.RecordError(serr.Err)
		}
	}
	span.SetAttributes(attribute.String("edgesite.outcome", string(o)))
	r.set(step, o, msg)
	p.opts.Metrics.ObserveStep(step, string(o))

	if serr == nil {
		p.logger.Info(ctx, "step finished",
			"deployment_id", r.ID,
			"step", step,
			"outcome", string(o),
		)
	}
	return serr
}

// finish counts the steps a fatal failure left unattempted and the
// operation as a whole.
func (p *Provisioner) finish(r *Report, start time.Time, err error) {
	r.Duration = time.Since(start)
	if err != nil {
		for _, s := range r.Steps {
			if s.Outcome == OutcomeSkipped {
				p.opts.Metrics.ObserveStep(s.Step, string(OutcomeSkipped))
			}
		}
	}
	p.opts.Metrics.ObserveOperation(r.Operation, err == nil, r.Duration)
}
