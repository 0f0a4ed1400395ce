package provision

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Deploy makes program reachable at id's URL. fileCount is the manifest size
// the program was generated from; zero fails before any remote call.
func (p *Provisioner) Deploy(ctx context.Context, id SiteIdentity, program []byte, fileCount int) (*Report, error) {
	if fileCount <= 0 || len(program) == 0 {
		return nil, ErrEmptyManifest
	}
	if id.ResourceName == "" {
		return nil, xerrors.New("deploy: site identity is not resolved")
	}

	start := time.Now()
	r := newReport("deploy", id, StepDNS, StepUpload, StepRoute, StepPurge)
	p.logger.Info(ctx, "deploying site",
		"deployment_id", r.ID,
		"host", id.Host(),
		"resource", id.ResourceName,
		"files", fileCount,
		"program_bytes", len(program),
	)

	err := p.deploy(ctx, r, id, program)
	p.finish(r, start, err)
	return r, err
}

func (p *Provisioner) deploy(ctx context.Context, r *Report, id SiteIdentity, program []byte) error {
	if serr := p.runStep(ctx, r, StepDNS, func(ctx context.Context) (Outcome, *StepError) {
		count, res := p.client.QueryDNSRecord(ctx, id.Host())
		if !res.Success {
			return OutcomeFailed, stepError(StepDNS, res)
		}
		if count > 0 {
			return OutcomeSatisfied, nil
		}
		if res := p.client.CreateDNSRecord(ctx, id.Host(), p.opts.PlaceholderAddress, true); !res.Success {
			return OutcomeFailed, stepError(StepDNS, res)
		}
		return OutcomeApplied, nil
	}); serr != nil {
		return serr
	}

	if serr := p.runStep(ctx, r, StepUpload, func(ctx context.Context) (Outcome, *StepError) {
		if res := p.client.UploadScript(ctx, id.ResourceName, program); !res.Success {
			return OutcomeFailed, stepError(StepUpload, res)
		}
		return OutcomeApplied, nil
	}); serr != nil {
		return serr
	}

	if serr := p.runStep(ctx, r, StepRoute, func(ctx context.Context) (Outcome, *StepError) {
		res := p.client.CreateRoute(ctx, id.Pattern(), id.ResourceName)
		switch {
		case res.Success:
			return OutcomeApplied, nil
		case strings.Contains(strings.ToLower(res.Message()), routeExists):
			return OutcomeSatisfied, nil
		default:
			return OutcomeFailed, stepError(StepRoute, res)
		}
	}); serr != nil {
		return serr
	}

	// purge failures only mean stale content for up to the cache TTL
	if serr := p.runStep(ctx, r, StepPurge, func(ctx context.Context) (Outcome, *StepError) {
		if res := p.client.PurgeCache(ctx); !res.Success {
			return OutcomeFailed, stepError(StepPurge, res)
		}
		return OutcomeApplied, nil
	}); serr != nil {
		r.Warnings = append(r.Warnings, "cache purge failed, old content may be served until it expires: "+serr.Error())
		p.logger.Warn(ctx, "cache purge failed",
			"deployment_id", r.ID,
			"error_message", serr.Error(),
		)
	}

	p.logger.Info(ctx, "site deployed",
		"deployment_id", r.ID,
		"url", r.URL,
	)
	return nil
}

// Teardown deletes id's program. The DNS record and route are left in place.
func (p *Provisioner) Teardown(ctx context.Context, id SiteIdentity) (*Report, error) {
	if id.ResourceName == "" {
		return nil, xerrors.New("teardown: site identity is not resolved")
	}
	start := time.Now()
	r := newReport("teardown", id, StepDelete)

	err := p.runStep(ctx, r, StepDelete, func(ctx context.Context) (Outcome, *StepError) {
		if res := p.client.DeleteScript(ctx, id.ResourceName); !res.Success {
			return OutcomeFailed, stepError(StepDelete, res)
		}
		return OutcomeApplied, nil
	})
	if err != nil {
		p.finish(r, start, err)
		return r, err
	}

	r.Notes = append(r.Notes,
		"the DNS record and route for "+id.Host()+" were left in place and will be reused by the next deploy")
	p.finish(r, start, nil)
	p.logger.Info(ctx, "site torn down",
		"deployment_id", r.ID,
		"resource", id.ResourceName,
	)
	return r, nil
}

// Site is one deployed site found by List.
type Site struct {
	Subdomain    string `json:"subdomain"`
	ResourceName string `json:"resource_name"`
	URL          string `json:"url"`
}

// List returns the sites deployed under the configured prefix, sorted by
// subdomain. No sites is not an error.
func (p *Provisioner) List(ctx context.Context) ([]Site, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "provision."+StepList)
	defer span.End()

	names, res := p.client.ListScripts(ctx)
	if !res.Success {
		serr := stepError(StepList, res)
		p.opts.Metrics.ObserveOperation("list", false, time.Since(start))
		return nil, serr
	}

	base := p.opts.Credentials.BaseDomain
	var sites []Site
	for _, name := range names {
		sub, ok := subdomainOf(p.opts.Prefix, name)
		if !ok {
			continue
		}
		id := SiteIdentity{Subdomain: sub, BaseDomain: base, ResourceName: name}
		sites = append(sites, Site{Subdomain: sub, ResourceName: name, URL: id.URL()})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Subdomain < sites[j].Subdomain })

	p.opts.Metrics.ObserveOperation("list", true, time.Since(start))
	p.logger.Debug(ctx, "listed sites", "total", len(names), "matched", len(sites))
	return sites, nil
}
