package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trucks-must-roll/internal/tui"
)

func boardCmd() *cobra.Command {
	var refresh string

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Live full-screen view of the vehicle queue",
		Long: `Show the queue in a table that reloads from the database, so entries
recorded by other terminals or the API appear as they happen.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, err := parseDurationFlag("refresh", refresh)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			return tui.Run(cmd.Context(), tui.NewModel(a.db, a.sequencer, interval))
		},
	}

	cmd.Flags().StringVar(&refresh, "refresh", tui.DefaultRefresh.String(), "reload interval")
	return cmd
}
