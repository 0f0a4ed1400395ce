package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTeardownCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "teardown [dir]",
		Short: "Delete a deployed site's program",
		Long: `Delete the program serving a deployed site.

The DNS record and route are left in place; the next deploy of the same
name reuses them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSite(args)
			if err != nil {
				return err
			}
			return a.teardown(cmd.Context(), s, name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "subdomain or URL to tear down (default: project file, then folder name)")
	return cmd
}

func (a *app) teardown(ctx context.Context, s site, name string) error {
	p, err := a.provisioner()
	if err != nil {
		return err
	}
	id, err := p.Identity(s.name(name), s.folder())
	if err != nil {
		return err
	}

	report, err := p.Teardown(ctx, id)
	a.pushMetrics(ctx, id.ResourceName)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "torn down %s\n", id.Host())
	for _, n := range report.Notes {
		fmt.Fprintln(a.stderr, "note:", n)
	}
	return nil
}
