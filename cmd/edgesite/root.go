package main

import (
	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/cfg"
	"github.com/keithlinneman/edgesite/internal/version"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   version.AppName,
		Short: "Deploy static sites as edge programs",
		Long: `edgesite turns a directory of static files into a single self-contained
edge program and publishes it under <name>.<base domain>.

Credentials come from $HOME/.edgesite/credentials.ini (see 'edgesite configure')
or the CLOUDFLARE_API_TOKEN, CLOUDFLARE_ACCOUNT_ID, CLOUDFLARE_ZONE_ID and
EDGESITE_BASE_DOMAIN environment variables. Every flag can also be set as
EDGESITE_<FLAG_NAME>.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cfg.Register(root.PersistentFlags(), &a.conf)

	root.AddCommand(
		newDeployCmd(a),
		newTeardownCmd(a),
		newListCmd(a),
		newBuildCmd(a),
		newServeCmd(a),
		newConfigureCmd(a),
		newVersionCmd(a),
	)
	return root
}
