package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/plate"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
)

type waitInFlags struct {
	vehicle       string
	category      string
	driverName    string
	driverPhone   string
	driverTown    string
	driverLicense string
	driverAlcohol string
	helperName    string
	helperID      string
	helperPhone   string
	helperTown    string
	helperAlcohol string
	driverPPE     string
	helperPPE     string
	requested     string
	plateImage    string
	insured       bool
	interactive   bool
}

func waitInCmd() *cobra.Command {
	var f waitInFlags

	cmd := &cobra.Command{
		Use:   "in",
		Short: "Register an arriving vehicle and issue its ticket",
		Long: `Record the WaitIn form for an arriving vehicle. A ticket number is issued
from today's counter for the vehicle's category.`,
		Example: `  # Register a bulk delivery asking for 40 bags
  trucks in --vehicle "NW LB-4455" --category Bulk --requested Bulk=40

  # Read the plate from a gate camera image
  trucks in --plate-image gate.jpg --category Sanstha

  # Fill the form interactively
  trucks in -i`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			form := a.queue.InitialFormData()

			if f.plateImage != "" && f.vehicle == "" {
				detector := plate.NewClient(viper.GetString("plate.url"), viper.GetDuration("plate.timeout"))
				number, _, detectErr := plate.DetectVehicleNumber(ctx, detector, f.plateImage)
				if detectErr != nil {
					return common.NewUserError("could not read the vehicle number from "+f.plateImage, detectErr)
				}
				f.vehicle = number
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Detected vehicle "+number))
			}

			if err := applyWaitInFlags(cmd, &form, f); err != nil {
				return err
			}

			if f.interactive {
				form, err = cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PromptWaitIn(ctx, form)
				if err != nil {
					return err
				}
			}

			if form.VehicleNumber == "" {
				return common.NewUserError("a vehicle number is required (--vehicle, --plate-image or -i)", nil)
			}
			if !model.IsKnownCategory(form.Category) {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf(
					"Category %q is not in the ticket table; it will use the %s series", form.Category, model.DefaultPrefix)))
			}

			rec, err := a.queue.AddWaitInEntry(ctx, form)
			if err != nil {
				return fmt.Errorf("failed to record wait-in: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Ticket %s issued to %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.FormatTicket(rec.TicketNumber),
				rec.VehicleNumber)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.vehicle, "vehicle", "", "vehicle number")
	cmd.Flags().StringVarP(&f.category, "category", "c", model.DefaultCategory, "vehicle category")
	cmd.Flags().StringVar(&f.driverName, "driver-name", "", "driver name")
	cmd.Flags().StringVar(&f.driverPhone, "driver-phone", "", "driver phone")
	cmd.Flags().StringVar(&f.driverTown, "driver-town", "", "driver town")
	cmd.Flags().StringVar(&f.driverLicense, "driver-license", "", "driver licence number")
	cmd.Flags().StringVar(&f.driverAlcohol, "driver-alcohol", string(model.AlcoholLow), "driver alcohol test (low, high)")
	cmd.Flags().StringVar(&f.helperName, "helper-name", "", "helper name")
	cmd.Flags().StringVar(&f.helperID, "helper-id", "", "helper identity number")
	cmd.Flags().StringVar(&f.helperPhone, "helper-phone", "", "helper phone")
	cmd.Flags().StringVar(&f.helperTown, "helper-town", "", "helper town")
	cmd.Flags().StringVar(&f.helperAlcohol, "helper-alcohol", string(model.AlcoholLow), "helper alcohol test (low, high)")
	cmd.Flags().StringVar(&f.driverPPE, "driver-ppe", "", "driver PPE number")
	cmd.Flags().StringVar(&f.helperPPE, "helper-ppe", "", "helper PPE number")
	cmd.Flags().BoolVar(&f.insured, "insured", false, "vehicle insurance checked")
	cmd.Flags().StringVar(&f.requested, "requested", "", `requested bags, "10,0,5,0,0,0" or "Bulk=5,Sanstha=10"`)
	cmd.Flags().StringVar(&f.plateImage, "plate-image", "", "detect the vehicle number from this image")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "prompt for every field")

	return cmd
}

func applyWaitInFlags(cmd *cobra.Command, form *model.WaitInForm, f waitInFlags) error {
	form.VehicleNumber = f.vehicle
	form.Category = f.category
	form.DriverName = f.driverName
	form.DriverPhone = f.driverPhone
	form.DriverTown = f.driverTown
	form.DriverLicense = f.driverLicense
	form.HelperName = f.helperName
	form.HelperIdentity = f.helperID
	form.HelperPhone = f.helperPhone
	form.HelperTown = f.helperTown
	form.DriverPPENumber = f.driverPPE
	form.HelperPPENumber = f.helperPPE
	form.VehicleInsurance = f.insured

	var err error
	if form.DriverAlcoholTest, err = parseAlcohol(f.driverAlcohol); err != nil {
		return err
	}
	if form.HelperAlcoholTest, err = parseAlcohol(f.helperAlcohol); err != nil {
		return err
	}

	if cmd.Flags().Changed("requested") {
		counts, err := parseBagCounts(f.requested)
		if err != nil {
			return common.NewUserError("invalid --requested", err)
		}
		for i, n := range counts {
			form.DeliveryTable[i].RequestedBag = n
		}
	}
	return nil
}

func parseAlcohol(s string) (model.AlcoholLevel, error) {
	switch model.AlcoholLevel(s) {
	case model.AlcoholLow, model.AlcoholHigh:
		return model.AlcoholLevel(s), nil
	}
	return "", common.NewUserError(fmt.Sprintf("alcohol test must be low or high, got %q", s), nil)
}

func waitOutCmd() *cobra.Command {
	var (
		delivered   string
		departure   string
		totalIssue  string
		notes       string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "out <ticket>",
		Short: "Record a departing vehicle",
		Long: `Record the WaitOut form for a ticket. Delivered bag counts are merged into
the arrival record; requested counts are left as they were.`,
		Example: `  trucks out B-03 --delivered Bulk=38 --total-issue "2 short" --notes "torn bags"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prefix, seq, err := model.ParseTicketNumber(strings.TrimSpace(args[0]))
			if err != nil {
				return common.NewUserError("ticket numbers look like B-03", err)
			}
			ticketNumber := model.FormatTicketNumber(strings.ToUpper(prefix), seq)

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			form := model.WaitOutForm{
				DepartureTime: departure,
				TotalIssue:    totalIssue,
				Notes:         notes,
				DeliveryTable: model.NewDeliveryTable(),
			}
			if form.DepartureTime == "" {
				form.DepartureTime = time.Now().In(a.location).Format(model.ArrivalTimeLayout)
			}
			counts, err := parseBagCounts(delivered)
			if err != nil {
				return common.NewUserError("invalid --delivered", err)
			}
			for i, n := range counts {
				form.DeliveryTable[i].DeliveryBag = n
			}

			if interactive {
				rec, ok := a.queue.Get(ticketNumber)
				if !ok {
					return common.NewUserError("no process with ticket "+ticketNumber, common.ErrProcessNotFound)
				}
				if form, err = cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PromptWaitOut(ctx, rec, form); err != nil {
					return err
				}
			}

			outcome, err := a.queue.UpdateWaitOutEntry(ctx, ticketNumber, form)
			if err != nil {
				return fmt.Errorf("failed to record wait-out: %w", err)
			}

			switch outcome {
			case process.OutcomeNotFound:
				return common.NewUserError("no process with ticket "+ticketNumber, common.ErrProcessNotFound)
			case process.OutcomeAlreadyFinished:
				return common.NewUserError("ticket "+ticketNumber+" has already left", common.ErrAlreadyFinished)
			}

			rec, _ := a.queue.Get(ticketNumber)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s finished: %d of %d bags delivered\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.FormatTicket(ticketNumber),
				rec.WaitIn.DeliveryTable.TotalDelivered(),
				rec.WaitIn.DeliveryTable.TotalRequested())
			return nil
		},
	}

	cmd.Flags().StringVar(&delivered, "delivered", "", `delivered bags, "10,0,5,0,0,0" or "Bulk=5,Sanstha=10"`)
	cmd.Flags().StringVar(&departure, "departure-time", "", "departure time (default: now)")
	cmd.Flags().StringVar(&totalIssue, "total-issue", "", "total issue noted at departure")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for every field")

	return cmd
}

func listCmd() *cobra.Command {
	var (
		status string
		match  string
		asJSON bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the vehicle queue, newest first",
		Example: `  trucks list --status Pending
  trucks list --match "^nw"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			filter, err := parseStatus(status)
			if err != nil {
				return err
			}
			records := a.queue.ListAll()
			if filter != "" {
				records = a.queue.Filter(filter)
			}

			if match != "" {
				records, err = matchVehicles(records, match)
				if err != nil {
					return err
				}
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if asJSON {
				return writeJSON(cmd, records)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderQueue(records))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only Pending or Finished")
	cmd.Flags().StringVar(&match, "match", "", "regex matched against vehicle numbers")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

// matchVehicles keeps records whose vehicle number, as typed or with
// separators removed, matches pattern.
func matchVehicles(records []model.ProcessRecord, pattern string) ([]model.ProcessRecord, error) {
	var out []model.ProcessRecord
	for _, r := range records {
		ok, err := common.MatchRegex(pattern, r.VehicleNumber)
		if err != nil {
			return nil, common.NewUserError("invalid --match pattern", err)
		}
		if !ok {
			ok, _ = common.MatchRegex(pattern, common.CompactPlate(r.VehicleNumber))
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func showCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <ticket>",
		Short: "Show one process record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			rec, ok := a.queue.Get(args[0])
			if !ok {
				return common.NewUserError("no process with ticket "+args[0], common.ErrProcessNotFound)
			}
			if asJSON {
				return writeJSON(cmd, rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRecord(rec))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func formCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "form",
		Short: "Print a fresh WaitIn form template as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := loadLocation()
			if err != nil {
				return err
			}
			return writeJSON(cmd, model.NewWaitInForm(time.Now().In(loc)))
		},
	}
}

func countersCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Show today's ticket counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			state, err := a.sequencer.Counts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, state)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderCounters(state))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
