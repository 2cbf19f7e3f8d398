package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/storage"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, verify and delete database checkpoints.

A checkpoint is a full copy of the queue database plus the ticket counter,
taken with SQLite's online backup and fingerprinted with BLAKE3.`,
		Example: `  # Snapshot before clearing the queue at end of day
  trucks checkpoint create --tag "end-of-shift"

  # List all checkpoints
  trucks checkpoint list

  # Restore from a checkpoint
  trucks checkpoint restore end-of-shift`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(verifyCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// withCheckpoints opens storage and hands fn a checkpoint manager.
func withCheckpoints(ctx context.Context, fn func(*storage.CheckpointManager) error) error {
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(store, "database")

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(manager)
}

func createCheckpointCmd() *cobra.Command {
	var tag string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd.Context(), func(manager *storage.CheckpointManager) error {
				info, err := manager.Create(cmd.Context(), tag, description)
				if err != nil {
					if errors.Is(err, storage.ErrCheckpointExists) || errors.Is(err, storage.ErrInvalidCheckpointID) {
						return common.NewUserError(err.Error(), err)
					}
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created checkpoint %s (%s, %d records)",
					info.ID, cli.FormatBytes(info.FileSize), info.Processes)))
				if info.Description != "" {
					fmt.Fprintf(out, "  Description: %s\n", info.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "checkpoint name (auto-generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description of the checkpoint")

	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd.Context(), func(manager *storage.CheckpointManager) error {
				checkpoints, err := manager.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}
				if len(checkpoints) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No checkpoints found."))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderCheckpoints(checkpoints))
				return nil
			})
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Restore the database from a checkpoint",
		Long: `Replace the current database with a checkpoint. The ticket counter is
restored with it, so tickets issued after the checkpoint will be issued again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd.Context(), func(manager *storage.CheckpointManager) error {
				info, err := manager.GetCheckpointInfo(cmd.Context(), id)
				if err != nil {
					return checkpointLookupError(id, err)
				}

				if !force {
					fmt.Fprintf(cmd.OutOrStdout(), "Restore checkpoint %s from %s (%d records, %d pending)?\n",
						info.ID, info.CreatedAt.Format("2006-01-02 15:04"), info.Processes, info.Pending)
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("The current queue and ticket counter will be replaced."))
					if !confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
						fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled.")
						return nil
					}
				}

				if err := manager.Restore(cmd.Context(), id); err != nil {
					if errors.Is(err, storage.ErrDigestMismatch) || errors.Is(err, storage.ErrCheckpointCorrupted) {
						return common.NewUserError(fmt.Sprintf("checkpoint %s failed verification and was not restored", id), err)
					}
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Restored checkpoint "+id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func verifyCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <checkpoint-id>",
		Short: "Check a checkpoint's digest and integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd.Context(), func(manager *storage.CheckpointManager) error {
				if err := manager.Verify(cmd.Context(), id); err != nil {
					switch {
					case errors.Is(err, storage.ErrDigestMismatch):
						return common.NewUserError(fmt.Sprintf("checkpoint %s does not match its recorded digest", id), err)
					case errors.Is(err, storage.ErrCheckpointCorrupted):
						return common.NewUserError(fmt.Sprintf("checkpoint %s is corrupted", id), err)
					default:
						return checkpointLookupError(id, err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Checkpoint "+id+" is intact"))
				return nil
			})
		},
	}
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd.Context(), func(manager *storage.CheckpointManager) error {
				if !force {
					fmt.Fprintf(cmd.OutOrStdout(), "Delete checkpoint %s?\n", id)
					if !confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
						fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
						return nil
					}
				}

				if err := manager.Delete(cmd.Context(), id); err != nil {
					return checkpointLookupError(id, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted checkpoint "+id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func checkpointLookupError(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrCheckpointNotFound):
		return common.NewUserError(fmt.Sprintf("checkpoint %s not found", id), err)
	case errors.Is(err, storage.ErrInvalidCheckpointID):
		return common.NewUserError(fmt.Sprintf("invalid checkpoint id %q", id), err)
	default:
		return fmt.Errorf("checkpoint %s: %w", id, err)
	}
}

// confirm asks for a y/N answer. Anything but y or yes is a no.
func confirm(r io.Reader, w io.Writer) bool {
	fmt.Fprint(w, cli.FormatPrompt("Continue? [y/N]: "))
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
