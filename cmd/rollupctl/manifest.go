package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bidon15/rollupctl/internal/manifest"
)

func (a *app) manifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the address manifest",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the recorded addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(false)
			if err != nil {
				return err
			}
			store := manifest.NewFileStore(cfg.Manifest)
			m, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			if a.jsonOut {
				data, err := m.MarshalIndent()
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\n", data)
				return nil
			}
			if m.Len() == 0 {
				fmt.Fprintf(a.out, "No addresses recorded in %s\n", store.Path())
				return nil
			}
			printManifest(a.out, m)
			return nil
		},
	}

	cmd.AddCommand(showCmd)
	return cmd
}
