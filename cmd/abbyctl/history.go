package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boristopalov/abby/internal/store"
)

func newHistoryCommand(cli *cliContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "show recent parameter changes recorded for a session",
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

			changes, err := s.RecentParameterChanges(args[0], limit)
			if err != nil {
				return fmt.Errorf("read parameter history: %w", err)
			}
			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded parameter changes for this session")
				return nil
			}

			rows := make([][]string, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, []string{
					c.Timestamp.Format("15:04:05"),
					c.TrackName,
					c.DeviceName,
					c.ParameterName,
					fmt.Sprintf("%.3f", c.OldValue),
					fmt.Sprintf("%.3f", c.NewValue),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Track", "Device", "Parameter", "Old", "New"}, rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of changes to show")
	return cmd
}
