package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/worker"
)

func newDeployCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "deploy [dir]",
		Short: "Publish a directory as <name>.<base domain> and print its URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSite(args)
			if err != nil {
				return err
			}
			return a.deploy(cmd.Context(), s, name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "subdomain or URL to deploy as (default: project file, then folder name)")
	return cmd
}

func (a *app) deploy(ctx context.Context, s site, name string) error {
	p, err := a.provisioner()
	if err != nil {
		return err
	}
	id, err := p.Identity(s.name(name), s.folder())
	if err != nil {
		return err
	}

	m, err := manifest.Build(ctx, s.root, s.manifestOptions(a.logger))
	if err != nil {
		return err
	}
	a.metrics.SetManifest(m.Len(), m.TotalSize())
	program, err := worker.Generate(m)
	if err != nil {
		return err
	}

	report, err := p.Deploy(ctx, id, program, m.Len())
	a.pushMetrics(ctx, id.ResourceName)
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(a.stderr, "warning:", w)
	}

	a.archiveRelease(ctx, id.ResourceName, m, program)
	fmt.Fprintln(a.stdout, report.URL)
	return nil
}
