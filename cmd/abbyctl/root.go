package main

import (
	"github.com/spf13/cobra"

	"github.com/boristopalov/abby/internal/config"
)

// cliContext carries the flags every subcommand needs to reach abbyd.
type cliContext struct {
	addr    string
	dataDir string
}

func newRootCommand() *cobra.Command {
	cli := &cliContext{}

	root := &cobra.Command{
		Use:           "abbyctl",
		Short:         "operator CLI for the abby daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	def := config.Default()
	root.PersistentFlags().StringVar(&cli.addr, "addr", def.Channel.ListenAddress, "abbyd client channel address")
	root.PersistentFlags().StringVar(&cli.dataDir, "data-dir", def.DataDir, "abbyd data directory (for the audit log)")

	root.AddCommand(newChatCommand(cli))
	root.AddCommand(newHistoryCommand(cli))
	root.AddCommand(newToolLogCommand(cli))
	root.AddCommand(newStatusCommand(cli))

	return root
}
