package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/plate"
)

func detectCmd() *cobra.Command {
	var (
		asJSON    bool
		checkOnly bool
	)

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Read licence plates from an image",
		Long: `Send an image to the plate recognition service (plate.url) and print the
plates it found, most confident first.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if checkOnly {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := plate.NewClient(viper.GetString("plate.url"), viper.GetDuration("plate.timeout"))

			if checkOnly {
				if err := client.CheckHealth(ctx); err != nil {
					return common.NewUserError("plate service is not healthy", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Plate service is healthy"))
				return nil
			}

			number, result, err := plate.DetectVehicleNumber(ctx, client, args[0])
			if asJSON && result != nil {
				if jsonErr := writeJSON(cmd, result); jsonErr != nil {
					return jsonErr
				}
			}
			if err != nil {
				if errors.Is(err, common.ErrNoPlateDetected) {
					return common.NewUserError("no plate found in "+args[0], err)
				}
				return fmt.Errorf("plate detection failed: %w", err)
			}
			if asJSON {
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderDetection(result))
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Vehicle number: "+number))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw detection result")
	cmd.Flags().BoolVar(&checkOnly, "health", false, "only check that the plate service is up")
	return cmd
}
