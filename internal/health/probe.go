package health

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/edgesite/internal/xerrors"
)

// Probe reports nil when healthy; the error text becomes the 503 body.
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// All fails with the first failing probe, in order. nil probes are skipped.
func All(probes ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range probes {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Named prefixes p's failure with name so a 503 body says which check failed.
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Check(ctx); err != nil {
			return xerrors.Wrap(err, name)
		}
		return nil
	}
}

// ShutdownGate stays open until Set; after that its probe always fails.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	}
}
