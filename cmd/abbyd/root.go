package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "abbyd",
		Short:         "abby daemon: bridges a DAW session to a tool-using chat agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to abbyd.toml (default ~/.abby/abbyd.toml)")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the abbyd version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "abbyd %s\n", version)
			return nil
		},
	})

	return root
}
