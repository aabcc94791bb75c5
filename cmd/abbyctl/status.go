package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "check whether abbyd is accepting connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nc, err := net.DialTimeout("tcp", cli.addr, 2*time.Second)
			if err != nil {
				return fmt.Errorf("abbyd is not reachable at %s: %w", cli.addr, err)
			}
			nc.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "abbyd is reachable at %s\n", cli.addr)
			return nil
		},
	}
}
