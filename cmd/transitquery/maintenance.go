package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the location cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			removed := application.Cache.Expire()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired cache entries from %s\n", removed, application.Cache.Root())
			return err
		},
	})
	return cmd
}

func newBackendsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the loaded networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			return opts.print(cmd.OutOrStdout(), application.Manager.Backends())
		},
	}
}
