package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/config"
	"github.com/Veraticus/the-trucks-must-roll/internal/export"
	"github.com/Veraticus/the-trucks-must-roll/internal/jobs"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
	"github.com/Veraticus/the-trucks-must-roll/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the process log",
		Long: `Write the process log to an Excel workbook in export.dir or to a
Google Sheets spreadsheet, and inspect earlier workbook exports.`,
	}

	cmd.AddCommand(exportXLSXCmd())
	cmd.AddCommand(exportSheetsCmd())
	cmd.AddCommand(sheetsAuthCmd())
	cmd.AddCommand(listExportsCmd())
	cmd.AddCommand(showExportCmd())

	return cmd
}

func exporterDir(override string) string {
	if override != "" {
		return config.ExpandPath(override)
	}
	return config.ExpandPath(viper.GetString("export.dir"))
}

func exportXLSXCmd() *cobra.Command {
	var (
		status     string
		dir        string
		enqueue    bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Write the process log to a new Excel workbook",
		Example: `  trucks export xlsx
  trucks export xlsx --status Finished --dir ./reports
  trucks export xlsx --enqueue   # hand off to the job worker`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			filter, err := parseStatus(status)
			if err != nil {
				return err
			}

			if enqueue {
				opt, ok := redisOpt()
				if !ok {
					return common.NewUserError("--enqueue needs redis.addr to be configured", common.ErrMissingConfig)
				}
				task, err := jobs.NewExportReportTask(filter)
				if err != nil {
					return err
				}
				info, err := jobs.Enqueue(ctx, opt, task)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Queued export job %s on %s", info.ID, info.Queue)))
				return nil
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(store, "database")

			records, err := store.ListProcesses(ctx, service.ProcessFilter{Status: filter})
			if err != nil {
				return fmt.Errorf("failed to load processes: %w", err)
			}

			var opts []export.Option
			if !noProgress {
				bar := newExportBar(cmd, len(records))
				opts = append(opts, export.WithProgress(func(_, _ int) {
					if err := bar.Add(1); err != nil {
						slog.Warn("Failed to update progress bar", "error", err)
					}
				}))
			}

			summary, err := export.NewExporter(exporterDir(dir), opts...).Write(ctx, records)
			if err != nil {
				if errors.Is(err, export.ErrNoRecords) {
					return common.NewUserError("nothing to export", err)
				}
				return err
			}

			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only Pending or Finished")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: export.dir)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "run the export on the asynq worker instead")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")

	return cmd
}

func newExportBar(cmd *cobra.Command, total int) *progressbar.ProgressBar {
	out := cmd.ErrOrStderr()
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[yellow][bold]Exporting processes...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[yellow]=[reset]",
			SaucerHead:    "[yellow]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)
}

func exportSheetsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the process log to Google Sheets",
		Long: `Replace the configured sheet with the process log. Credentials come from
sheets.* settings or the GOOGLE_SHEETS_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			filter, err := parseStatus(status)
			if err != nil {
				return err
			}

			sheetsCfg, err := config.LoadSheetsConfig()
			if err != nil {
				return common.NewUserError("Google Sheets is not configured: "+err.Error(), err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(store, "database")

			records, err := store.ListProcesses(ctx, service.ProcessFilter{Status: filter})
			if err != nil {
				return fmt.Errorf("failed to load processes: %w", err)
			}

			writer, err := sheets.NewWriter(ctx, *sheetsCfg, slog.Default())
			if err != nil {
				return fmt.Errorf("failed to create sheets writer: %w", err)
			}

			summary, err := writer.Write(ctx, records)
			if err != nil {
				if errors.Is(err, export.ErrNoRecords) {
					return common.NewUserError("nothing to export", err)
				}
				return err
			}

			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only Pending or Finished")
	return cmd
}

func sheetsAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize Google Sheets access and print the refresh token",
		Long: `Run the OAuth2 browser flow with sheets.client_id and sheets.client_secret.
The consent page redirects to sheets.callback_addr. The token is cached in
sheets.token_file; an existing token is refreshed instead. Put the printed
refresh token in sheets.refresh_token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID := viper.GetString("sheets.client_id")
			clientSecret := viper.GetString("sheets.client_secret")
			if clientID == "" || clientSecret == "" {
				return common.NewUserError("sheets.client_id and sheets.client_secret must be set", common.ErrMissingConfig)
			}

			fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Authorizing Google Sheets access..."))
			token, err := sheets.Authorize(cmd.Context(), sheets.AuthConfig{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenFile:    config.ExpandPath(viper.GetString("sheets.token_file")),
				CallbackAddr: viper.GetString("sheets.callback_addr"),
				Timeout:      viper.GetDuration("sheets.auth_timeout"),
				Prompt:       cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to authorize Google Sheets: %w", err)
			}
			if token.RefreshToken == "" {
				return common.NewUserError("Google did not return a refresh token; revoke the app's access and try again", nil)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token.RefreshToken)
			return nil
		},
	}
	return cmd
}

func printSummary(cmd *cobra.Command, s *service.ReportSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Exported %d records to %s", s.RowsWritten, s.Location)))
	fmt.Fprintf(out, "  Pending: %d  Finished: %d  Bags requested: %d  Bags delivered: %d\n",
		s.Pending, s.Finished, s.BagsRequested, s.BagsDelivered)
}

func listExportsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workbook exports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := export.NewExporter(exporterDir(dir)).ListExports()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No exports found."))
				return nil
			}
			for _, f := range files {
				fmt.Fprintf(out, "%s  %s  %s\n", f.ModTime.Format("2006-01-02 15:04"), cli.FormatBytes(f.Size), f.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "export directory (default: export.dir)")
	return cmd
}

func showExportCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Print the rows of a workbook export (default: the newest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				latest, ok, err := export.NewExporter(exporterDir(dir)).LatestExport()
				if err != nil {
					return err
				}
				if !ok {
					return common.NewUserError("no exports found", nil)
				}
				path = latest.Path
			}

			rows, err := export.ReadRows(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(filepath.Base(path)))
			for _, row := range rows {
				fmt.Fprintln(out, formatExportRow(row))
			}
			fmt.Fprintf(out, "%d rows\n", len(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "export directory (default: export.dir)")
	return cmd
}

// formatExportRow prints the identifying columns first, then the rest in
// column order.
func formatExportRow(row map[string]string) string {
	columns := export.Columns()
	order := make(map[string]int, len(columns))
	for i, c := range columns {
		order[c] = i
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok != jok {
			return iok
		}
		if iok {
			return oi < oj
		}
		return keys[i] < keys[j]
	})

	line := ""
	for _, k := range keys {
		if row[k] == "" {
			continue
		}
		if line != "" {
			line += "  "
		}
		line += k + "=" + row[k]
	}
	return line
}
