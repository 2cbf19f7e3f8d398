package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

func resetCmd() *cobra.Command {
	var (
		force    bool
		counters bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the process queue",
		Long: `Reset deletes every process record. An automatic checkpoint is taken
first, so the queue can be brought back with 'trucks checkpoint restore'.

With --counters today's ticket numbering also starts over.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			counts, err := a.db.CountProcesses(ctx)
			if err != nil {
				return err
			}
			total := counts[model.StatusPending] + counts[model.StatusFinished]

			if total == 0 && !counters {
				fmt.Fprintln(out, cli.FormatInfo("No processes found. Nothing to reset."))
				return nil
			}

			if !force {
				fmt.Fprintf(out, "This will delete %d process records (%d pending).\n", total, counts[model.StatusPending])
				if counters {
					fmt.Fprintln(out, "Today's ticket counters will start over.")
				}
				if !confirm(cmd.InOrStdin(), out) {
					fmt.Fprintln(out, "Reset cancelled.")
					return nil
				}
			}

			manager, err := a.db.NewCheckpointManager()
			if err != nil {
				return fmt.Errorf("failed to create checkpoint manager: %w", err)
			}
			info, err := manager.AutoCheckpoint(ctx, "reset")
			if err != nil {
				return err
			}

			if err := a.db.DeleteProcesses(ctx); err != nil {
				return err
			}
			if counters {
				if err := a.sequencer.Reset(ctx); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted %d process records", total)))
			fmt.Fprintf(out, "  Checkpoint: %s\n", info.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	cmd.Flags().BoolVar(&counters, "counters", false, "also reset today's ticket counters")

	return cmd
}
