package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/manifest"
	"github.com/keithlinneman/edgesite/internal/worker"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

func newBuildCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Generate the edge program without deploying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSite(args)
			if err != nil {
				return err
			}
			return a.build(cmd.Context(), s, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the program to this file instead of stdout")
	return cmd
}

func (a *app) build(ctx context.Context, s site, out string) error {
	m, err := manifest.Build(ctx, s.root, s.manifestOptions(a.logger))
	if err != nil {
		return err
	}
	program, err := worker.Generate(m)
	if err != nil {
		return err
	}

	if out == "" || out == "-" {
		_, err := a.stdout.Write(program)
		return err
	}
	if err := os.WriteFile(out, program, 0o644); err != nil {
		return xerrors.Wrapf(err, "write program %s", out)
	}
	a.logger.Info(ctx, "program written",
		"path", out,
		"files", m.Len(),
		"bytes", len(program),
		"manifest_digest", m.Digest(),
	)
	return nil
}
