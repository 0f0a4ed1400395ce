package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the URL of every deployed site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.provisioner()
			if err != nil {
				return err
			}
			sites, err := p.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(sites) == 0 {
				fmt.Fprintln(a.stdout, "nothing deployed")
				return nil
			}
			for _, s := range sites {
				fmt.Fprintln(a.stdout, s.URL)
			}
			return nil
		},
	}
}
