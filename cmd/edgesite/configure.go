package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/edgesite/internal/credentials"
	"github.com/keithlinneman/edgesite/internal/xerrors"
)

func newConfigureCmd(a *app) *cobra.Command {
	var c credentials.Credentials
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store platform credentials in the credentials file",
		Long: `Write the given values into the [cloudflare] section of the credentials
file, keeping anything already stored for flags that are not passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c == (credentials.Credentials{}) {
				return xerrors.New("nothing to store: pass at least one of --api-token, --account-id, --zone-id, --base-domain")
			}
			path, err := a.credentialsPath()
			if err != nil {
				return err
			}
			if err := credentials.Save(path, c); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "credentials written to", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&c.APIToken, "api-token", "", "API token")
	cmd.Flags().StringVar(&c.AccountID, "account-id", "", "account id")
	cmd.Flags().StringVar(&c.ZoneID, "zone-id", "", "zone id of the base domain")
	cmd.Flags().StringVar(&c.BaseDomain, "base-domain", "", "domain sites are published under")
	return cmd
}
