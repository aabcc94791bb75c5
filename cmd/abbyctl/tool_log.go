package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boristopalov/abby/internal/store"
)

func newToolLogCommand(cli *cliContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tool-log <session-id>",
		Short: "show the tool-call and approval audit trail for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := expandHome(cli.dataDir)
			if err != nil {
				return err
			}
			s, err := store.New(store.Config{DataDir: dataDir})
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer s.Close()

			events, err := s.RecentToolEvents(args[0], limit)
			if err != nil {
				return fmt.Errorf("read tool event history: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded tool events for this session")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				result := e.ResultContent
				if e.IsError {
					result = "ERROR: " + result
				}
				rows = append(rows, []string{e.RecordedAt, e.Kind, e.ToolName, e.ToolCallID, result})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Recorded", "Kind", "Tool", "Call ID", "Result"}, rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "maximum number of events to show")
	return cmd
}
